package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avroute/internal/observability"
)

func newRedisLimiter(t *testing.T, limit int, window time.Duration) *RedisLimiter {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := DefaultRedisConfig()
	cfg.Address = mr.Addr()

	l, err := NewRedisLimiter(cfg, limit, window, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	l := newRedisLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		result, err := l.Allow(context.Background(), "ep-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i)
	}
}

func TestRedisLimiter_DeniesBeyondLimit(t *testing.T) {
	l := newRedisLimiter(t, 2, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := l.Allow(context.Background(), "ep-a")
		require.NoError(t, err)
	}

	result, err := l.Allow(context.Background(), "ep-a")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	l := newRedisLimiter(t, 1, time.Minute)

	result, err := l.Allow(context.Background(), "ep-a")
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = l.Allow(context.Background(), "ep-b")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestNewRedisLimiter_RejectsNonPositiveLimit(t *testing.T) {
	_, err := NewRedisLimiter(DefaultRedisConfig(), 0, time.Minute, nil)
	assert.Error(t, err)
}
