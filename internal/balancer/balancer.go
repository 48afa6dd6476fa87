// Package balancer selects one endpoint from a candidate list per a
// configured strategy.
package balancer

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
)

// Strategy identifies a load-balancing strategy.
type Strategy string

const (
	// StrategyRoundRobin cycles through candidates in order.
	StrategyRoundRobin Strategy = "round_robin"

	// StrategyRandom picks a candidate uniformly at random.
	StrategyRandom Strategy = "random"

	// StrategyWeighted is selectable but not algorithmically implemented;
	// selection falls back to the first candidate.
	StrategyWeighted Strategy = "weighted"

	// StrategyLeastConnections is selectable but not algorithmically
	// implemented; selection falls back to the first candidate.
	StrategyLeastConnections Strategy = "least_connections"

	// StrategyFastestResponse is selectable but not algorithmically
	// implemented; selection falls back to the first candidate.
	StrategyFastestResponse Strategy = "fastest_response"
)

// Valid reports whether the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyRandom, StrategyWeighted,
		StrategyLeastConnections, StrategyFastestResponse:
		return true
	default:
		return false
	}
}

// ErrNoCandidates is returned when selection is attempted over an empty
// candidate list.
var ErrNoCandidates = errors.New("no candidate endpoints")

// ErrUnknownStrategy is returned for an unrecognized strategy value.
var ErrUnknownStrategy = errors.New("unknown load balancing strategy")

// Balancer chooses one endpoint from a candidate list.
//
// The round-robin cursor is a single counter owned by the instance. It is
// not reset or re-keyed per distinct candidate set: callers alternating
// between different candidate lists will see the cursor drift relative to
// any one list. That is documented behavior carried over from the cursor's
// single-counter design.
type Balancer struct {
	strategy Strategy
	cursor   atomic.Uint64

	// endpointStats is reserved for strategies that will need per-endpoint
	// state (least connections, fastest response).
	endpointStats sync.Map

	mu sync.RWMutex
}

// New creates a new balancer with the given default strategy.
func New(strategy Strategy) *Balancer {
	if !strategy.Valid() {
		strategy = StrategyRoundRobin
	}
	return &Balancer{strategy: strategy}
}

// Strategy returns the current default strategy.
func (b *Balancer) Strategy() Strategy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.strategy
}

// SetStrategy changes the default strategy.
func (b *Balancer) SetStrategy(strategy Strategy) error {
	if !strategy.Valid() {
		return ErrUnknownStrategy
	}
	b.mu.Lock()
	b.strategy = strategy
	b.mu.Unlock()
	return nil
}

// Select chooses one endpoint from candidates using the default strategy.
func (b *Balancer) Select(candidates []string) (string, error) {
	return b.SelectWith(b.Strategy(), candidates)
}

// SelectWith chooses one endpoint from candidates using the given strategy.
// An empty strategy falls back to the balancer default.
func (b *Balancer) SelectWith(strategy Strategy, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	if strategy == "" {
		strategy = b.Strategy()
	}

	switch strategy {
	case StrategyRoundRobin:
		idx := b.cursor.Add(1) - 1
		return candidates[idx%uint64(len(candidates))], nil

	case StrategyRandom:
		return candidates[secureRandomInt(len(candidates))], nil

	case StrategyWeighted, StrategyLeastConnections, StrategyFastestResponse:
		// Declared strategies without an algorithm yet. The fallback to
		// the first candidate is deliberate and visible.
		return candidates[0], nil

	default:
		return "", ErrUnknownStrategy
	}
}

// secureRandomInt returns a cryptographically secure random int in [0, n).
func secureRandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	// Safe conversion: result of modulo is always < n, which fits in int
	return int(binary.LittleEndian.Uint64(b[:]) % uint64(n)) //nolint:gosec // bounds checked
}
