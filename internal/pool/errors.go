package pool

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avroute/internal/circuitbreaker"
)

// ErrPoolExhausted is returned when the global connection cap is reached and
// no idle connection exists. It is an admission-control signal, not a
// transport failure: the caller decides whether to fail or retry later; the
// pool never queues.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// CircuitOpenError is returned when the endpoint's circuit breaker denies
// the attempt. No pool slot is consumed.
type CircuitOpenError struct {
	Endpoint string
	State    circuitbreaker.State
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker for endpoint %q is %s", e.Endpoint, e.State)
}

// ConnectionCreationError is returned when establishing a new connection
// fails. The failure has already been recorded against the endpoint's
// circuit breaker.
type ConnectionCreationError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionCreationError) Error() string {
	return fmt.Sprintf("failed to create connection to endpoint %q: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionCreationError) Unwrap() error {
	return e.Err
}
