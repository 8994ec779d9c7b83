package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/open-mcp/vmcp/pkg/vmcp"
	"github.com/open-mcp/vmcp/pkg/vmcp/transport"
)

func TestGetOrOpen_UnknownBackend(t *testing.T) {
	t.Parallel()
	m := NewManager(transport.NewFakeFactory())

	_, err := m.GetOrOpen(context.Background(), "ghost")

	require.Error(t, err)
	assert.True(t, vmcp.IsKind(err, vmcp.KindUnknownBackend))
}

func TestGetOrOpen_OpensOnce(t *testing.T) {
	t.Parallel()
	fake := transport.NewFakeFactory()
	m := NewManager(fake)
	m.Register(Config{Name: "alpha", Command: "echo"})

	sess1, err := m.GetOrOpen(context.Background(), "alpha")
	require.NoError(t, err)
	sess2, err := m.GetOrOpen(context.Background(), "alpha")
	require.NoError(t, err)

	assert.Same(t, sess1, sess2)
	assert.Equal(t, 1, fake.Opens)
}

func TestGetOrOpen_RetrySafety(t *testing.T) {
	t.Parallel()
	fake := transport.NewFakeFactory()
	fake.OpenErr["beta"] = errors.New("unreachable")
	m := NewManager(fake)
	m.Register(Config{Name: "beta", URL: ""})
	// force command path so the fake factory is exercised without SSRF checks
	m.entries["beta"].cfg.Command = "run-beta"

	_, err := m.GetOrOpen(context.Background(), "beta")
	require.Error(t, err)
	assert.True(t, vmcp.IsKind(err, vmcp.KindTransportFailed))

	delete(fake.OpenErr, "beta")
	// A retry before the backoff interval elapses must not reach the
	// transport at all (S5: beta stays pending, never silently drops).
	_, err = m.GetOrOpen(context.Background(), "beta")
	require.Error(t, err)
	assert.True(t, vmcp.IsKind(err, vmcp.KindBackendBackingOff))
	assert.Equal(t, 1, fake.Opens, "a backed-off retry must not reach the transport factory")

	// Simulate both the backoff interval and the reconnect rate limit
	// window elapsing.
	m.entries["beta"].nextRetryAt = time.Time{}
	m.entries["beta"].limiter = rate.NewLimiter(rate.Every(reconnectRateLimit), 1)
	sess, err := m.GetOrOpen(context.Background(), "beta")
	require.NoError(t, err, "a subsequent GetOrOpen must reach the transport factory again")
	assert.NotNil(t, sess)
}

func TestClose_RestoresPendingBeforeTransportClose(t *testing.T) {
	t.Parallel()
	fake := transport.NewFakeFactory()
	m := NewManager(fake)
	m.Register(Config{Name: "alpha", Command: "echo"})
	_, err := m.GetOrOpen(context.Background(), "alpha")
	require.NoError(t, err)

	require.NoError(t, m.Close("alpha", "manual"))

	assert.Equal(t, vmcp.BackendPending, m.State("alpha"))
}

func TestIdleReaper_ClosesIdleNonPinnedBackend(t *testing.T) {
	t.Parallel()
	fake := transport.NewFakeFactory()
	m := NewManager(fake, WithIdleReapInterval(5*time.Millisecond))
	m.Register(Config{Name: "alpha", Command: "echo", IdleTimeoutMinutes: 0})
	m.entries["alpha"].cfg.IdleTimeoutMinutes = 1
	_, err := m.GetOrOpen(context.Background(), "alpha")
	require.NoError(t, err)

	// Force the last-used timestamp far enough in the past that even
	// a one-minute idle timeout has elapsed.
	m.entries["alpha"].lastUsed.nanos.Store(int64(-2 * time.Hour))

	m.StartIdleReaper(context.Background())
	defer m.StopIdleReaper()

	require.Eventually(t, func() bool {
		return m.State("alpha") != vmcp.BackendLive
	}, time.Second, 5*time.Millisecond)
}

func TestIdleReaper_NeverReapsPinnedBackend(t *testing.T) {
	t.Parallel()
	fake := transport.NewFakeFactory()
	m := NewManager(fake, WithIdleReapInterval(5*time.Millisecond))
	m.Register(Config{Name: "alpha", Command: "echo", AlwaysOn: true})
	_, err := m.GetOrOpen(context.Background(), "alpha")
	require.NoError(t, err)
	m.entries["alpha"].lastUsed.nanos.Store(int64(-2 * time.Hour))

	m.StartIdleReaper(context.Background())
	defer m.StopIdleReaper()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, vmcp.BackendLive, m.State("alpha"))
}

func TestGetOrOpen_SSRFBlocked(t *testing.T) {
	t.Parallel()
	m := NewManager(transport.NewFakeFactory())
	m.Register(Config{Name: "beta", URL: "http://127.0.0.1:9999/mcp"})

	_, err := m.GetOrOpen(context.Background(), "beta")

	require.Error(t, err)
	assert.True(t, vmcp.IsKind(err, vmcp.KindSSRFBlocked))
}

func TestShutdown_ClosesAllLiveSessions(t *testing.T) {
	t.Parallel()
	fake := transport.NewFakeFactory()
	m := NewManager(fake)
	m.Register(Config{Name: "alpha", Command: "echo"})
	m.Register(Config{Name: "beta", Command: "echo"})
	_, err := m.GetOrOpen(context.Background(), "alpha")
	require.NoError(t, err)
	_, err = m.GetOrOpen(context.Background(), "beta")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))

	assert.NotEqual(t, vmcp.BackendLive, m.State("alpha"))
	assert.NotEqual(t, vmcp.BackendLive, m.State("beta"))
}
