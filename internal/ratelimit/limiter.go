// Package ratelimit provides per-endpoint request rate limiting for the
// routing engine. Limiting is optional and disabled by default.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter suggests how long to wait before retrying when denied.
	RetryAfter time.Duration
}

// Limiter checks whether a request against a key (an endpoint) is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
	Close() error
}
