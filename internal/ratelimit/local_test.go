package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiter_AllowsWithinBurst(t *testing.T) {
	l := NewLocalLimiter(10, 5)
	defer l.Close()

	for i := 0; i < 5; i++ {
		result, err := l.Allow(context.Background(), "ep-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i)
	}
}

func TestLocalLimiter_DeniesBeyondBurst(t *testing.T) {
	l := NewLocalLimiter(1, 2)
	defer l.Close()

	_, err := l.Allow(context.Background(), "ep-a")
	require.NoError(t, err)
	_, err = l.Allow(context.Background(), "ep-a")
	require.NoError(t, err)

	result, err := l.Allow(context.Background(), "ep-a")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, time.Second, result.RetryAfter)
}

func TestLocalLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLocalLimiter(1, 1)
	defer l.Close()

	result, err := l.Allow(context.Background(), "ep-a")
	require.NoError(t, err)
	require.True(t, result.Allowed)

	// Exhausting ep-a does not affect ep-b.
	result, err = l.Allow(context.Background(), "ep-a")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	result, err = l.Allow(context.Background(), "ep-b")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLocalLimiter_CloseIsIdempotent(t *testing.T) {
	l := NewLocalLimiter(1, 1)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

func TestLocalLimiter_CleanupRemovesIdleKeys(t *testing.T) {
	l := NewLocalLimiter(1, 1, WithKeyTTL(time.Millisecond))
	defer l.Close()

	_, err := l.Allow(context.Background(), "ep-a")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	l.cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.keys)
}
