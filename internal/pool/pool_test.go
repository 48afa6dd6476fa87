package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avroute/internal/circuitbreaker"
	"github.com/vyrodovalexey/avroute/internal/observability"
)

// fakeTransport is an in-memory transport for pool tests.
type fakeTransport struct {
	closed atomic.Bool
}

func (t *fakeTransport) Read(p []byte) (int, error)  { return 0, nil }
func (t *fakeTransport) Write(p []byte) (int, error) { return len(p), nil }

func (t *fakeTransport) Close() error {
	t.closed.Store(true)
	return nil
}

func (t *fakeTransport) IsClosed() bool {
	return t.closed.Load()
}

// fakeDialer counts dials and can be told to fail.
type fakeDialer struct {
	mu    sync.Mutex
	dials int
	fail  error
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string, timeout time.Duration) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail != nil {
		return nil, d.fail
	}
	return &fakeTransport{}, nil
}

func newTestPool(t *testing.T, maxConns int, dialer Dialer) *Pool {
	t.Helper()
	config := &Config{
		MaxConnections:     maxConns,
		MaxIdlePerEndpoint: 10,
		BreakerConfig:      circuitbreaker.DefaultConfig(),
		Dialer:             dialer,
	}
	return New(config, observability.NopLogger())
}

func TestPool_GetAndRelease(t *testing.T) {
	dialer := &fakeDialer{}
	p := newTestPool(t, 2, dialer)

	conn, err := p.Get(context.Background(), "a:1")
	require.NoError(t, err)
	assert.Equal(t, ConnStateActive, conn.State())
	assert.Equal(t, 1, p.ActiveConnections())

	p.Release("a:1", conn)
	assert.Equal(t, ConnStateIdle, conn.State())
	// Re-pooled connections still count against the cap.
	assert.Equal(t, 1, p.ActiveConnections())
}

func TestPool_ReusesIdleConnection(t *testing.T) {
	dialer := &fakeDialer{}
	p := newTestPool(t, 2, dialer)

	conn1, err := p.Get(context.Background(), "a:1")
	require.NoError(t, err)
	p.Release("a:1", conn1)

	conn2, err := p.Get(context.Background(), "a:1")
	require.NoError(t, err)

	assert.Equal(t, conn1.ID(), conn2.ID())
	assert.Equal(t, 1, dialer.dials)
}

func TestPool_ExhaustionIsAdmissionControl(t *testing.T) {
	dialer := &fakeDialer{}
	p := newTestPool(t, 1, dialer)

	conn1, err := p.Get(context.Background(), "x:1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ActiveConnections())

	// Second acquisition before release is denied immediately.
	_, err = p.Get(context.Background(), "x:1")
	assert.ErrorIs(t, err, ErrPoolExhausted)

	state, ok := p.EndpointState("x:1")
	require.True(t, ok)
	assert.Equal(t, ConnStateOverloaded, state)

	// After release the idle connection is reusable even at the cap.
	p.Release("x:1", conn1)
	conn2, err := p.Get(context.Background(), "x:1")
	require.NoError(t, err)
	assert.Equal(t, conn1.ID(), conn2.ID())
}

func TestPool_CircuitOpenBlocksWithoutConsumingSlot(t *testing.T) {
	dialer := &fakeDialer{}
	config := &Config{
		MaxConnections:     2,
		MaxIdlePerEndpoint: 10,
		BreakerConfig:      circuitbreaker.DefaultConfig().WithFailureThreshold(1),
		Dialer:             dialer,
	}
	p := New(config, observability.NopLogger())

	p.RecordFailure("a:1")
	require.Equal(t, circuitbreaker.StateOpen, p.Breaker("a:1").State())

	_, err := p.Get(context.Background(), "a:1")

	var circuitErr *CircuitOpenError
	require.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, "a:1", circuitErr.Endpoint)
	assert.Equal(t, 0, p.ActiveConnections())
	assert.Equal(t, 0, dialer.dials)
}

func TestPool_GetUngatedBypassesBreaker(t *testing.T) {
	dialer := &fakeDialer{}
	config := &Config{
		MaxConnections:     2,
		MaxIdlePerEndpoint: 10,
		BreakerConfig:      circuitbreaker.DefaultConfig().WithFailureThreshold(1),
		Dialer:             dialer,
	}
	p := New(config, observability.NopLogger())

	p.RecordFailure("a:1")
	require.Equal(t, circuitbreaker.StateOpen, p.Breaker("a:1").State())

	conn, err := p.GetUngated(context.Background(), "a:1")
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestPool_DialFailureRecordsBreakerFailure(t *testing.T) {
	dialer := &fakeDialer{fail: errors.New("connection refused")}
	p := newTestPool(t, 2, dialer)

	_, err := p.Get(context.Background(), "bad:1")

	var createErr *ConnectionCreationError
	require.ErrorAs(t, err, &createErr)
	assert.Equal(t, "bad:1", createErr.Endpoint)
	assert.Equal(t, 0, p.ActiveConnections())
	assert.Equal(t, 1, p.Breaker("bad:1").FailureCount())

	state, ok := p.EndpointState("bad:1")
	require.True(t, ok)
	assert.Equal(t, ConnStateFailed, state)
}

func TestPool_ReleaseClosedConnectionFreesSlot(t *testing.T) {
	dialer := &fakeDialer{}
	p := newTestPool(t, 1, dialer)

	conn, err := p.Get(context.Background(), "a:1")
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	p.Release("a:1", conn)

	assert.Equal(t, 0, p.ActiveConnections())

	// The slot is free again.
	_, err = p.Get(context.Background(), "a:1")
	require.NoError(t, err)
}

func TestPool_ReleaseBeyondIdleLimitCloses(t *testing.T) {
	dialer := &fakeDialer{}
	config := &Config{
		MaxConnections:     10,
		MaxIdlePerEndpoint: 1,
		BreakerConfig:      circuitbreaker.DefaultConfig(),
		Dialer:             dialer,
	}
	p := New(config, observability.NopLogger())

	conn1, err := p.Get(context.Background(), "a:1")
	require.NoError(t, err)
	conn2, err := p.Get(context.Background(), "a:1")
	require.NoError(t, err)
	require.Equal(t, 2, p.ActiveConnections())

	p.Release("a:1", conn1)
	p.Release("a:1", conn2)

	assert.False(t, conn1.IsClosed())
	assert.True(t, conn2.IsClosed())
	assert.Equal(t, 1, p.ActiveConnections())
}

func TestPool_CloseAll(t *testing.T) {
	dialer := &fakeDialer{}
	p := newTestPool(t, 5, dialer)

	conn1, err := p.Get(context.Background(), "a:1")
	require.NoError(t, err)
	conn2, err := p.Get(context.Background(), "b:1")
	require.NoError(t, err)
	p.Release("a:1", conn1)
	p.Release("b:1", conn2)

	p.CloseAll()

	assert.True(t, conn1.IsClosed())
	assert.True(t, conn2.IsClosed())
	assert.Equal(t, 0, p.ActiveConnections())

	// Idempotent.
	p.CloseAll()
	assert.Equal(t, 0, p.ActiveConnections())
}

func TestPool_BoundHoldsUnderConcurrency(t *testing.T) {
	dialer := &fakeDialer{}
	p := newTestPool(t, 4, dialer)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				conn, err := p.Get(context.Background(), "a:1")
				if err != nil {
					continue
				}
				active := p.ActiveConnections()
				assert.LessOrEqual(t, active, 4)
				assert.GreaterOrEqual(t, active, 0)
				p.Release("a:1", conn)
			}
		}()
	}
	wg.Wait()

	active := p.ActiveConnections()
	assert.GreaterOrEqual(t, active, 0)
	assert.LessOrEqual(t, active, 4)
}

func TestPool_BreakerStatsSnapshot(t *testing.T) {
	p := newTestPool(t, 2, &fakeDialer{})

	p.RecordFailure("a:1")
	p.RecordSuccess("b:1")

	stats := p.BreakerStats()
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats["a:1"].FailureCount)
	assert.Equal(t, 0, stats["b:1"].FailureCount)
}

func TestPool_OpenBreakers(t *testing.T) {
	config := &Config{
		MaxConnections:     2,
		MaxIdlePerEndpoint: 10,
		BreakerConfig:      circuitbreaker.DefaultConfig().WithFailureThreshold(1),
		Dialer:             &fakeDialer{},
	}
	p := New(config, observability.NopLogger())

	p.RecordFailure("a:1")
	p.RecordSuccess("b:1")
	p.RecordSuccess("c:1")

	assert.Equal(t, 1, p.OpenBreakers())
}

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "idle", ConnStateIdle.String())
	assert.Equal(t, "active", ConnStateActive.String())
	assert.Equal(t, "overloaded", ConnStateOverloaded.String())
	assert.Equal(t, "failed", ConnStateFailed.String())
	assert.Equal(t, "unknown", ConnState(99).String())
}
