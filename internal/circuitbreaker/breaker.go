package circuitbreaker

import (
	"sync"
	"time"

	"github.com/vyrodovalexey/avroute/internal/observability"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and attempts are allowed.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and attempts are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is probing whether the endpoint
	// has recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker tracks failures against a single endpoint and rejects
// attempts while the endpoint is considered unhealthy.
//
// The state machine cycles for the lifetime of the owning endpoint entry:
// closed opens once the failure count reaches the threshold, open becomes
// half-open after the recovery timeout has elapsed since the last failure,
// and half-open closes on the first recorded success. While half-open any
// number of concurrent trial attempts is allowed; there is no single-probe
// limit.
type CircuitBreaker struct {
	name   string
	config *Config
	logger observability.Logger

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config *Config, logger observability.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	if logger == nil {
		logger = observability.NopLogger()
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
	}
}

// RecordSuccess records a successful attempt. The failure count resets to
// zero and the circuit closes regardless of the current state.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	RecordSuccess(cb.name)

	cb.failureCount = 0
	if cb.state != StateClosed {
		cb.transitionTo(StateClosed)
	}
}

// RecordFailure records a failed attempt. The circuit opens once the
// failure count reaches the threshold; a failure in half-open state returns
// the circuit to open because the count is still at or above the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	RecordFailure(cb.name)

	if cb.failureCount >= cb.config.FailureThreshold && cb.state != StateOpen {
		cb.transitionTo(StateOpen)
	}
}

// CanAttempt reports whether an attempt against the endpoint is allowed.
// An open circuit transitions to half-open once the recovery timeout has
// elapsed since the last failure. Half-open allows attempts without
// limiting the number of concurrent probes.
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var allowed bool

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.RecoveryTimeout {
			cb.transitionTo(StateHalfOpen)
			allowed = true
		}

	case StateHalfOpen:
		allowed = true
	}

	RecordAttempt(cb.name, allowed)

	return allowed
}

// transitionTo transitions the circuit breaker to a new state.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	cb.state = newState

	RecordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		observability.String("endpoint", cb.name),
		observability.String("from", oldState.String()),
		observability.String("to", newState.String()),
		observability.Int("failure_count", cb.failureCount),
	)

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// CallTimeout returns the per-call budget configured for the endpoint.
func (cb *CircuitBreaker) CallTimeout() time.Duration {
	return cb.config.CallTimeout
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats returns a snapshot of the circuit breaker state.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Stats holds a point-in-time snapshot of circuit breaker state.
type Stats struct {
	State           State
	FailureCount    int
	LastFailureTime time.Time
}
