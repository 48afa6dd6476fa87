package balancer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalancer_RoundRobin_VisitsEachCandidateOnce(t *testing.T) {
	b := New(StrategyRoundRobin)
	candidates := []string{"a:1", "b:1", "c:1"}

	for i := 0; i < 2; i++ {
		for _, want := range candidates {
			got, err := b.Select(candidates)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestBalancer_RoundRobin_CursorDriftsAcrossCandidateSets(t *testing.T) {
	b := New(StrategyRoundRobin)

	first, err := b.Select([]string{"a:1", "b:1"})
	require.NoError(t, err)
	assert.Equal(t, "a:1", first)

	// A call against a different candidate set advances the same cursor.
	_, err = b.Select([]string{"x:1", "y:1", "z:1"})
	require.NoError(t, err)

	third, err := b.Select([]string{"a:1", "b:1"})
	require.NoError(t, err)
	assert.Equal(t, "a:1", third)
}

func TestBalancer_Random_ReturnsACandidate(t *testing.T) {
	b := New(StrategyRandom)
	candidates := []string{"a:1", "b:1", "c:1"}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		got, err := b.Select(candidates)
		require.NoError(t, err)
		assert.Contains(t, candidates, got)
		seen[got] = true
	}

	// 100 uniform draws over 3 candidates miss one with negligible odds.
	assert.Len(t, seen, 3)
}

func TestBalancer_UnimplementedStrategies_FallBackToFirst(t *testing.T) {
	for _, strategy := range []Strategy{
		StrategyWeighted,
		StrategyLeastConnections,
		StrategyFastestResponse,
	} {
		b := New(strategy)
		got, err := b.Select([]string{"first:1", "second:1"})
		require.NoError(t, err)
		assert.Equal(t, "first:1", got, "strategy %s", strategy)
	}
}

func TestBalancer_EmptyCandidates(t *testing.T) {
	b := New(StrategyRoundRobin)

	_, err := b.Select(nil)
	assert.ErrorIs(t, err, ErrNoCandidates)

	_, err = b.Select([]string{})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestBalancer_SelectWith_OverridesDefault(t *testing.T) {
	b := New(StrategyRoundRobin)

	got, err := b.SelectWith(StrategyWeighted, []string{"first:1", "second:1"})
	require.NoError(t, err)
	assert.Equal(t, "first:1", got)

	_, err = b.SelectWith("bogus", []string{"a:1"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestBalancer_SetStrategy(t *testing.T) {
	b := New(StrategyRoundRobin)

	require.NoError(t, b.SetStrategy(StrategyRandom))
	assert.Equal(t, StrategyRandom, b.Strategy())

	assert.ErrorIs(t, b.SetStrategy("bogus"), ErrUnknownStrategy)
}

func TestBalancer_IndependentInstancesDoNotShareCursor(t *testing.T) {
	b1 := New(StrategyRoundRobin)
	b2 := New(StrategyRoundRobin)
	candidates := []string{"a:1", "b:1"}

	got1, err := b1.Select(candidates)
	require.NoError(t, err)
	got2, err := b2.Select(candidates)
	require.NoError(t, err)

	assert.Equal(t, "a:1", got1)
	assert.Equal(t, "a:1", got2)
}

func TestBalancer_ConcurrentRoundRobinIsBalanced(t *testing.T) {
	b := New(StrategyRoundRobin)
	candidates := []string{"a:1", "b:1", "c:1", "d:1"}

	counts := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := b.Select(candidates)
				if err != nil {
					continue
				}
				mu.Lock()
				counts[got]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 800 selections over 4 candidates land exactly 200 each.
	for _, candidate := range candidates {
		assert.Equal(t, 200, counts[candidate])
	}
}

func TestStrategy_Valid(t *testing.T) {
	assert.True(t, StrategyRoundRobin.Valid())
	assert.True(t, StrategyRandom.Valid())
	assert.True(t, StrategyWeighted.Valid())
	assert.True(t, StrategyLeastConnections.Valid())
	assert.True(t, StrategyFastestResponse.Valid())
	assert.False(t, Strategy("bogus").Valid())
}
