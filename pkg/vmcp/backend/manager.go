// Package backend implements the Backend Manager (C3): backend
// connection lifecycle, idle-timeout reaping, reconnection, and the
// pending-config registry described in specification section 4.3.
package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/open-mcp/vmcp/pkg/logger"
	"github.com/open-mcp/vmcp/pkg/telemetry"
	"github.com/open-mcp/vmcp/pkg/vmcp"
	"github.com/open-mcp/vmcp/pkg/vmcp/networking"
	"github.com/open-mcp/vmcp/pkg/vmcp/transport"
)

// DefaultOpenTimeout bounds how long a single backend open may take
// (section 4.3: "a bounded connection timeout (default 30s)").
const DefaultOpenTimeout = 30 * time.Second

// DefaultConcurrency is the global cap on in-flight backend opens
// (section 4.3: "a global concurrency cap (semaphore, default 8
// in-flight opens)").
const DefaultConcurrency = 8

// DefaultIdleReapInterval is how often the idle reaper runs (section
// 5: "idle reaper runs at a fixed interval (default 60s)").
const DefaultIdleReapInterval = 60 * time.Second

// reconnectRateLimit is the hard floor on how often a failed backend
// may be retried, independent of the exponential backoff below (S5).
const reconnectRateLimit = 1 * time.Second

// reconnectInitialInterval is how long after an open failure before
// the first retry is attempted (S5: "a retry 1s later must attempt
// the transport again").
const reconnectInitialInterval = 1 * time.Second

// reconnectMaxInterval caps the exponential backoff applied to
// repeated open failures.
const reconnectMaxInterval = 30 * time.Second

// newReconnectBackoff builds the exponential backoff schedule applied
// to a backend's open failures. Randomization is off, so the first
// retry comes exactly reconnectInitialInterval after a failure. The
// schedule has no elapsed-time cutoff: a backend that keeps failing
// remains retryable forever, it never gives up and drops out of the
// pending state (section 8 property 4).
func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitialInterval
	b.MaxInterval = reconnectMaxInterval
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// allowedEnvKeys is the conservative allowlist filter applied to
// environment maps before they are handed to the transport factory
// for local subprocess backends (section 4.3).
var allowedEnvKeys = map[string]bool{
	"PATH": true, "HOME": true, "LANG": true, "LC_ALL": true,
	"TMPDIR": true, "TZ": true, "USER": true, "SHELL": true,
}

// Config is one backend's declared configuration, as handed to
// Register. It mirrors config.BackendConfig's fields the manager
// needs, keeping this package independent of pkg/vmcp/config.
type Config struct {
	Name               string
	Command            string
	Args               []string
	Env                map[string]string
	URL                string
	Type               vmcp.TransportKind
	AlwaysOn           bool
	IdleTimeoutMinutes int
}

func (c Config) idleTimeout() time.Duration {
	minutes := c.IdleTimeoutMinutes
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}

// entry is the manager's internal bookkeeping for one backend name.
type entry struct {
	mu sync.Mutex // serializes open/close transitions for this backend

	cfg     Config
	pending bool // declared config registered, not connected
	pinned  bool

	session  transport.Session
	lastUsed atomic64 // monotonic nanoseconds, updated lock-free

	limiter     *rate.Limiter            // hard floor on reconnect-attempt frequency
	boff        *backoff.ExponentialBackOff // grows the retry delay across repeated failures
	nextRetryAt time.Time                // zero means no backoff is in effect
}

// Manager owns backend sessions and their transport resources
// exclusively; every other component accesses a backend only through
// Manager's handle-returning methods (section 3: "Ownership").
type Manager struct {
	factory   transport.Factory
	guard     *networking.Guard
	openSem   *semaphore.Weighted
	openTimeo time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	reapInterval time.Duration
	reapCancel   context.CancelFunc
	reapDone     chan struct{}

	// metrics is nil unless WithMetrics is supplied, so a Manager built
	// without telemetry (every existing test) pays no cost and takes no
	// nil-registry special case at call sites beyond a single check.
	metrics *telemetry.Metrics
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithConcurrency overrides DefaultConcurrency.
func WithConcurrency(n int64) Option {
	return func(m *Manager) { m.openSem = semaphore.NewWeighted(n) }
}

// WithOpenTimeout overrides DefaultOpenTimeout.
func WithOpenTimeout(d time.Duration) Option {
	return func(m *Manager) { m.openTimeo = d }
}

// WithIdleReapInterval overrides DefaultIdleReapInterval.
func WithIdleReapInterval(d time.Duration) Option {
	return func(m *Manager) { m.reapInterval = d }
}

// WithMetrics attaches the process-wide telemetry handles so backend
// opens, closes, and idle reaps are recorded as they happen (section
// 8 DOMAIN STACK: "operational counters/gauges ... exposed at /metrics").
func WithMetrics(m *telemetry.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// NewManager constructs a Manager backed by the given transport
// factory. The idle reaper is not started until StartIdleReaper is
// called.
func NewManager(factory transport.Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:      factory,
		guard:        networking.NewGuard(),
		openSem:      semaphore.NewWeighted(DefaultConcurrency),
		openTimeo:    DefaultOpenTimeout,
		entries:      map[string]*entry{},
		reapInterval: DefaultIdleReapInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register idempotently inserts name into the pending-config map; it
// does not connect (section 4.3: "register(name, cfg)").
func (m *Manager) Register(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[cfg.Name]
	if !ok {
		e = &entry{
			limiter: rate.NewLimiter(rate.Every(reconnectRateLimit), 1),
			boff:    newReconnectBackoff(),
		}
		m.entries[cfg.Name] = e
	}
	e.cfg = cfg
	e.pending = true
	e.pinned = cfg.AlwaysOn
}

// Unregister removes name from both the pending-config and live maps,
// closing any open session first. It does not error if name is
// unknown.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	e, ok := m.entries[name]
	if ok {
		delete(m.entries, name)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		sess := e.session
		e.session = nil
		if err := sess.Close(); err != nil {
			return fmt.Errorf("close backend %q: %w", name, err)
		}
	}
	return nil
}

// MarkPinned controls whether the idle reaper may close name.
func (m *Manager) MarkPinned(name string, pinned bool) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.pinned = pinned
	e.mu.Unlock()
}

// Pinned reports whether name is exempt from idle reaping (always_on).
func (m *Manager) Pinned(name string) bool {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pinned
}

// Declared reports whether name has been registered (declared or
// pending or live) — used to distinguish KindUnknownBackend from a
// tool simply being hidden.
func (m *Manager) Declared(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[name]
	return ok
}

// State reports name's current lifecycle state (section 3).
func (m *Manager) State(name string) vmcp.BackendState {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return vmcp.BackendDisconnected
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.session != nil:
		return vmcp.BackendLive
	case e.pending:
		return vmcp.BackendPending
	default:
		return vmcp.BackendDisconnected
	}
}

// Names returns every currently declared backend name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for name := range m.entries {
		out = append(out, name)
	}
	return out
}

// GetOrOpen returns a live session for name, opening one on demand if
// necessary (section 4.3: "get_or_open(name) -> Session").
//
// Under the backend's serialization lock: if already live (possibly
// just opened by another caller), record_use and return; otherwise
// open with a bounded timeout and the global concurrency semaphore,
// and update last-used. On failure the
// pending config is restored before the error propagates, so the
// backend remains retryable (section 8 property 4).
func (m *Manager) GetOrOpen(ctx context.Context, name string) (transport.Session, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil, vmcp.New(vmcp.KindUnknownBackend, name, fmt.Errorf("backend %q is not declared", name))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		e.lastUsed.storeNow()
		return e.session, nil
	}

	if now := time.Now(); now.Before(e.nextRetryAt) {
		return nil, vmcp.New(vmcp.KindBackendBackingOff, name,
			fmt.Errorf("backend %q is backing off after a prior open failure, retry after %s", name, e.nextRetryAt.Format(time.RFC3339)))
	}
	if !e.limiter.Allow() {
		return nil, vmcp.New(vmcp.KindBackendBackingOff, name, fmt.Errorf("backend %q reconnect attempts are rate limited", name))
	}

	if err := m.guardURL(ctx, e.cfg); err != nil {
		return nil, err
	}

	if err := m.openSem.Acquire(ctx, 1); err != nil {
		return nil, vmcp.New(vmcp.KindOpenTimeout, name, err)
	}
	defer m.openSem.Release(1)

	openCtx, cancel := context.WithTimeout(ctx, m.openTimeo)
	defer cancel()

	spanCtx, span := telemetry.StartSpan(openCtx, telemetry.SpanBackendOpen, name)
	sess, err := m.factory.Open(spanCtx, transport.Config{
		Name:    name,
		Command: e.cfg.Command,
		Args:    e.cfg.Args,
		Env:     filterEnv(e.cfg.Env),
		URL:     e.cfg.URL,
		Type:    e.cfg.Type,
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		// Pending config is restored (it was never cleared) before
		// this error propagates, satisfying the retry-safety property.
		e.pending = true
		e.nextRetryAt = time.Now().Add(e.boff.NextBackOff())
		if m.metrics != nil {
			m.metrics.BackendOpenErrors.WithLabelValues(name).Inc()
		}
		if openCtx.Err() != nil {
			return nil, vmcp.New(vmcp.KindOpenTimeout, name, err)
		}
		return nil, vmcp.New(vmcp.KindTransportFailed, name, err)
	}

	e.session = sess
	e.pending = false
	e.boff.Reset()
	e.nextRetryAt = time.Time{}
	e.lastUsed.storeNow()
	if m.metrics != nil {
		m.metrics.BackendOpens.WithLabelValues(name).Inc()
		m.metrics.LiveBackends.Inc()
	}
	logger.Infow("backend opened", "backend", name)
	return sess, nil
}

// RecordUse refreshes name's last-used monotonic timestamp without
// taking the per-backend lock (section 5: "last-writer-wins is
// harmless").
func (m *Manager) RecordUse(name string) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if ok {
		e.lastUsed.storeNow()
	}
}

// Close removes name from the live map and closes its transport; if
// the backend had been registered, its pending config is reinstated
// so it can reopen (section 4.3: "close(name)"). reason labels the
// BackendCloses counter (e.g. "manual", "idle", "discovery",
// "shutdown") so /metrics can distinguish why backends are cycling.
func (m *Manager) Close(name, reason string) error {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return vmcp.New(vmcp.KindUnknownBackend, name, fmt.Errorf("backend %q is not declared", name))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	sess := e.session
	// Restore pending *before* the close so no concurrent GetOrOpen
	// can observe a window where the backend is neither live nor
	// pending (section 4.3).
	e.pending = true
	e.session = nil
	if m.metrics != nil {
		m.metrics.BackendCloses.WithLabelValues(name, reason).Inc()
		m.metrics.LiveBackends.Dec()
	}
	if err := sess.Close(); err != nil {
		return vmcp.New(vmcp.KindTransportFailed, name, err)
	}
	return nil
}

// Shutdown cancels the idle reaper and closes every live session
// concurrently (section 4.3: "shutdown()").
func (m *Manager) Shutdown(ctx context.Context) error {
	m.StopIdleReaper()

	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for name, e := range m.entries {
		e.mu.Lock()
		hasSession := e.session != nil
		e.mu.Unlock()
		if hasSession {
			names = append(names, name)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			errs[i] = m.Close(name, "shutdown")
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	_ = ctx
	return nil
}

func (m *Manager) guardURL(ctx context.Context, cfg Config) error {
	if cfg.URL == "" {
		return nil
	}
	if err := m.guard.Check(ctx, cfg.URL); err != nil {
		return vmcp.New(vmcp.KindSSRFBlocked, cfg.Name, err)
	}
	return nil
}

func filterEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		if allowedEnvKeys[k] {
			out[k] = v
		}
	}
	return out
}
