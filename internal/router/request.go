// Package router orchestrates endpoint selection, connection acquisition,
// opaque execution, and success/failure accounting for outbound operations.
package router

import (
	"time"

	"github.com/vyrodovalexey/avroute/internal/balancer"
)

// Request describes one outbound routing operation.
type Request struct {
	// Message is the opaque payload handed to the executor. Its wire
	// format is the executor's concern.
	Message []byte

	// Endpoints is the non-empty ordered candidate list.
	Endpoints []string

	// OperationID identifies the operation. Generated when absent.
	OperationID string

	// Strategy selects the load-balancing strategy for this call. Empty
	// falls back to the balancer default.
	Strategy balancer.Strategy

	// Timeout bounds the execute step. Zero falls back to the selected
	// endpoint's per-call budget.
	Timeout time.Duration

	// RetryEnabled and MaxRetries are carried on the request shape but no
	// cross-endpoint retry loop consumes them here; the surrounding
	// system may act on them.
	RetryEnabled bool
	MaxRetries   int

	// CircuitBreakerEnabled gates connection acquisition through the
	// endpoint's circuit breaker. Enabled by default via NewRequest.
	CircuitBreakerEnabled bool
}

// NewRequest builds a Request with defaults applied.
func NewRequest(message []byte, endpoints []string) *Request {
	return &Request{
		Message:               message,
		Endpoints:             endpoints,
		Strategy:              balancer.StrategyRoundRobin,
		CircuitBreakerEnabled: true,
	}
}

// Result reports the outcome of a successfully routed operation.
type Result struct {
	// Response is the opaque value produced by the executor.
	Response any

	OperationID             string
	Strategy                balancer.Strategy
	SelectedEndpoint        string
	ResponseTime            time.Duration
	RetryCount              int
	EndpointsTried          []string
	CircuitBreakerTriggered bool
}
