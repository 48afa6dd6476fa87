// Package circuitbreaker provides per-endpoint circuit breaker functionality
// for the routing engine. It implements the circuit breaker pattern to stop
// attempts against a failing endpoint for a cooldown window.
package circuitbreaker

import (
	"time"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// FailureThreshold is the failure count at which the circuit opens.
	FailureThreshold int

	// RecoveryTimeout is the cooldown the circuit stays open before a
	// trial attempt is allowed (transition to half-open).
	RecoveryTimeout time.Duration

	// CallTimeout is the per-call budget for operations against the
	// endpoint. The connection pool passes it through to connection
	// creation and the router uses it to bound execution.
	CallTimeout time.Duration

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		CallTimeout:      30 * time.Second,
	}
}

// Validate normalizes the configuration, replacing out-of-range values
// with defaults.
func (c *Config) Validate() error {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout < time.Millisecond {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.CallTimeout < time.Millisecond {
		c.CallTimeout = 30 * time.Second
	}
	return nil
}

// WithFailureThreshold sets the failure threshold.
func (c *Config) WithFailureThreshold(n int) *Config {
	c.FailureThreshold = n
	return c
}

// WithRecoveryTimeout sets the recovery timeout.
func (c *Config) WithRecoveryTimeout(d time.Duration) *Config {
	c.RecoveryTimeout = d
	return c
}

// WithCallTimeout sets the per-call timeout budget.
func (c *Config) WithCallTimeout(d time.Duration) *Config {
	c.CallTimeout = d
	return c
}

// WithOnStateChange sets the state change callback.
func (c *Config) WithOnStateChange(fn func(name string, from, to State)) *Config {
	c.OnStateChange = fn
	return c
}
