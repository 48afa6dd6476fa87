package router

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingError_Error(t *testing.T) {
	err := &RoutingError{Code: CodeCircuitOpen, Message: "breaker denied attempt"}
	assert.Equal(t, "circuit_open: breaker denied attempt", err.Error())

	wrapped := &RoutingError{
		Code:    CodeConnectionFailed,
		Message: "dial failed",
		Err:     errors.New("connection refused"),
	}
	assert.Equal(t, "connection_failed: dial failed: connection refused", wrapped.Error())
}

func TestRoutingError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := newRoutingError(CodeConnectionFailed, "dial failed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestNewRoutingError_ContextPairs(t *testing.T) {
	err := newRoutingError(CodeExecutionFailed, "boom", nil,
		"endpoint", "ep-a:9000",
		"attempt", 3,
	)

	assert.Equal(t, "ep-a:9000", err.Context["endpoint"])
	assert.Equal(t, 3, err.Context["attempt"])
}

func TestNewRoutingError_SkipsMalformedPairs(t *testing.T) {
	err := newRoutingError(CodeExecutionFailed, "boom", nil,
		42, "not-a-string-key",
		"dangling",
	)

	assert.Empty(t, err.Context)
}

func TestErrorCode(t *testing.T) {
	routingErr := newRoutingError(CodePoolExhausted, "full", nil)
	assert.Equal(t, CodePoolExhausted, ErrorCode(routingErr))

	wrapped := fmt.Errorf("outer: %w", routingErr)
	assert.Equal(t, CodePoolExhausted, ErrorCode(wrapped))

	assert.Equal(t, Code(""), ErrorCode(errors.New("plain")))
	assert.Equal(t, Code(""), ErrorCode(nil))
}
