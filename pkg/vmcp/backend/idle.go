package backend

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/open-mcp/vmcp/pkg/logger"
)

// processStart anchors atomic64 to a monotonic reference so storeNow
// can be implemented with a lock-free atomic.Int64 rather than a
// time.Time under a mutex (section 5: "Last-used timestamp: monotonic
// clock, updated without lock").
var processStart = time.Now()

// atomic64 stores a monotonic duration-since-start, safe for
// concurrent last-writer-wins updates without a lock.
type atomic64 struct {
	nanos atomic.Int64
}

func (a *atomic64) storeNow() {
	a.nanos.Store(int64(time.Since(processStart)))
}

func (a *atomic64) elapsed() time.Duration {
	return time.Since(processStart) - time.Duration(a.nanos.Load())
}

// StartIdleReaper launches the periodic task that closes non-pinned
// live backends whose last-used timestamp exceeds their idle timeout
// (section 4.3: "tick_idle_reaper()"). It returns immediately; the
// reaper runs until StopIdleReaper is called or ctx is canceled.
func (m *Manager) StartIdleReaper(ctx context.Context) {
	reapCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.reapCancel = cancel
	m.reapDone = make(chan struct{})
	done := m.reapDone
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-reapCtx.Done():
				return
			case <-ticker.C:
				m.tickIdleReaper()
			}
		}
	}()
}

// StopIdleReaper cancels the idle reaper and waits for its goroutine
// to exit. Safe to call even if the reaper was never started.
func (m *Manager) StopIdleReaper() {
	m.mu.Lock()
	cancel := m.reapCancel
	done := m.reapDone
	m.reapCancel = nil
	m.reapDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) tickIdleReaper() {
	m.mu.RLock()
	type candidate struct {
		name    string
		timeout time.Duration
	}
	var candidates []candidate
	for name, e := range m.entries {
		e.mu.Lock()
		pinned := e.pinned
		hasSession := e.session != nil
		idleTimeout := e.cfg.idleTimeout()
		e.mu.Unlock()
		if !pinned && hasSession {
			candidates = append(candidates, candidate{name: name, timeout: idleTimeout})
		}
	}
	m.mu.RUnlock()

	for _, c := range candidates {
		m.mu.RLock()
		e, ok := m.entries[c.name]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		e.mu.Lock()
		idle := e.session != nil && !e.pinned && e.lastUsed.elapsed() >= c.timeout
		e.mu.Unlock()
		if idle {
			if err := m.Close(c.name, "idle"); err != nil {
				logger.Warnw("idle reap failed", "backend", c.name, "error", err)
			} else {
				if m.metrics != nil {
					m.metrics.IdleReaps.WithLabelValues(c.name).Inc()
				}
				logger.Infow("idle reap closed backend", "backend", c.name)
			}
		}
	}
}
