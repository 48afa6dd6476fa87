// Package config defines the routing engine configuration model and its
// YAML loading and hot reload machinery.
package config

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/avroute/internal/balancer"
	"github.com/vyrodovalexey/avroute/internal/observability"
)

// Config is the root configuration for the routing engine.
type Config struct {
	Server         ServerConfig               `yaml:"server"`
	Pool           PoolConfig                 `yaml:"pool"`
	CircuitBreaker BreakerConfig              `yaml:"circuitBreaker"`
	Balancer       BalancerConfig             `yaml:"balancer"`
	RateLimit      *RateLimitConfig           `yaml:"rateLimit,omitempty"`
	Logging        observability.LogConfig    `yaml:"logging"`
	Tracing        observability.TracerConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP control and data plane server.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// PoolConfig configures the connection pool.
type PoolConfig struct {
	MaxConnections     int `yaml:"maxConnections"`
	MaxIdlePerEndpoint int `yaml:"maxIdlePerEndpoint"`
}

// BreakerConfig is the factory configuration for per-endpoint circuit
// breakers.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failureThreshold"`
	RecoveryTimeout  Duration `yaml:"recoveryTimeout"`
	CallTimeout      Duration `yaml:"callTimeout"`
}

// BalancerConfig configures endpoint selection.
type BalancerConfig struct {
	Strategy string `yaml:"strategy"`
}

// RateLimitConfig configures optional per-endpoint rate limiting.
type RateLimitConfig struct {
	Enabled           bool        `yaml:"enabled"`
	Backend           string      `yaml:"backend"`
	RequestsPerSecond int         `yaml:"requestsPerSecond"`
	Burst             int         `yaml:"burst"`
	Window            Duration    `yaml:"window"`
	Redis             RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis backend for distributed rate limiting.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Rate limit backends.
const (
	RateLimitBackendLocal = "local"
	RateLimitBackendRedis = "redis"
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Pool: PoolConfig{
			MaxConnections:     100,
			MaxIdlePerEndpoint: 10,
		},
		CircuitBreaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  Duration(60 * time.Second),
			CallTimeout:      Duration(30 * time.Second),
		},
		Balancer: BalancerConfig{
			Strategy: string(balancer.StrategyRoundRobin),
		},
		Logging: observability.DefaultLogConfig(),
		Tracing: observability.TracerConfig{
			ServiceName:  "avroute",
			SamplingRate: 1.0,
		},
	}
}

// Validate normalizes omitted values and rejects invalid ones.
func (c *Config) Validate() error {
	defaults := DefaultConfig()

	if c.Server.Address == "" {
		c.Server.Address = defaults.Server.Address
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = defaults.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}

	if c.Pool.MaxConnections < 1 {
		c.Pool.MaxConnections = defaults.Pool.MaxConnections
	}
	if c.Pool.MaxIdlePerEndpoint < 1 {
		c.Pool.MaxIdlePerEndpoint = defaults.Pool.MaxIdlePerEndpoint
	}

	if c.CircuitBreaker.FailureThreshold < 1 {
		c.CircuitBreaker.FailureThreshold = defaults.CircuitBreaker.FailureThreshold
	}
	if c.CircuitBreaker.RecoveryTimeout <= 0 {
		c.CircuitBreaker.RecoveryTimeout = defaults.CircuitBreaker.RecoveryTimeout
	}
	if c.CircuitBreaker.CallTimeout <= 0 {
		c.CircuitBreaker.CallTimeout = defaults.CircuitBreaker.CallTimeout
	}

	if c.Balancer.Strategy == "" {
		c.Balancer.Strategy = defaults.Balancer.Strategy
	}
	if !balancer.Strategy(c.Balancer.Strategy).Valid() {
		return fmt.Errorf("invalid balancer strategy: %s", c.Balancer.Strategy)
	}

	if c.Logging.Level == "" {
		c.Logging = defaults.Logging
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}

	if c.RateLimit != nil && c.RateLimit.Enabled {
		if err := c.RateLimit.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (r *RateLimitConfig) validate() error {
	if r.Backend == "" {
		r.Backend = RateLimitBackendLocal
	}
	switch r.Backend {
	case RateLimitBackendLocal, RateLimitBackendRedis:
	default:
		return fmt.Errorf("invalid rate limit backend: %s", r.Backend)
	}

	if r.RequestsPerSecond < 1 {
		return fmt.Errorf("rate limit requestsPerSecond must be positive, got %d", r.RequestsPerSecond)
	}
	if r.Burst < 1 {
		r.Burst = r.RequestsPerSecond
	}
	if r.Window <= 0 {
		r.Window = Duration(time.Second)
	}
	if r.Backend == RateLimitBackendRedis && r.Redis.Address == "" {
		return fmt.Errorf("rate limit redis backend requires an address")
	}
	return nil
}
