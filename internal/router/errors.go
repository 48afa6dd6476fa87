package router

import (
	"errors"
	"fmt"
)

// Code classifies routing failures into a uniform error shape.
type Code string

const (
	// CodeValidation indicates the request failed validation before any
	// resource was touched.
	CodeValidation Code = "validation_error"

	// CodeCircuitOpen indicates the selected endpoint's circuit breaker
	// denied the attempt.
	CodeCircuitOpen Code = "circuit_open"

	// CodePoolExhausted indicates the global connection cap was reached.
	CodePoolExhausted Code = "pool_exhausted"

	// CodeConnectionFailed indicates a transport-level failure
	// establishing a connection.
	CodeConnectionFailed Code = "connection_failed"

	// CodeExecutionFailed indicates the downstream operation failed.
	CodeExecutionFailed Code = "execution_failed"

	// CodeRateLimited indicates the endpoint's rate limiter denied the
	// attempt.
	CodeRateLimited Code = "rate_limited"
)

// RoutingError is the uniform error shape every failure is converted to at
// the route() boundary.
type RoutingError struct {
	Code    Code
	Message string
	Context map[string]any
	Err     error
}

func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *RoutingError) Unwrap() error {
	return e.Err
}

// newRoutingError builds a RoutingError with context key/value pairs.
func newRoutingError(code Code, message string, err error, kv ...any) *RoutingError {
	context := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		context[key] = kv[i+1]
	}
	return &RoutingError{
		Code:    code,
		Message: message,
		Context: context,
		Err:     err,
	}
}

// ErrorCode extracts the routing error code from err, or an empty code.
func ErrorCode(err error) Code {
	var routingErr *RoutingError
	if errors.As(err, &routingErr) {
		return routingErr.Code
	}
	return ""
}
