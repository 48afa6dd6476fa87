package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avroute/internal/observability"
)

// fixedWindowScript atomically increments the window counter and sets its
// expiry on first increment.
// KEYS[1] = window key
// ARGV[1] = window length in seconds
var fixedWindowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisConfig holds configuration for the Redis-backed limiter.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:      "localhost:6379",
		Prefix:       "ratelimit:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisLimiter implements fixed-window rate limiting backed by Redis, for
// deployments where several gateway instances share a budget per endpoint.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	logger observability.Logger
}

// NewRedisLimiter creates a Redis-backed fixed-window limiter allowing
// limit requests per window per key.
func NewRedisLimiter(cfg *RedisConfig, limit int, window time.Duration, logger observability.Logger) (*RedisLimiter, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	if limit < 1 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	if window < time.Second {
		window = time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &RedisLimiter{
		client: client,
		prefix: cfg.Prefix,
		limit:  limit,
		window: window,
		logger: logger,
	}, nil
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	windowStart := time.Now().Truncate(l.window)
	windowKey := fmt.Sprintf("%sfw:%s:%d", l.prefix, key, windowStart.Unix())

	current, err := fixedWindowScript.Run(ctx, l.client,
		[]string{windowKey},
		int(l.window.Seconds()),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	remaining := l.limit - current
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   current <= l.limit,
		Remaining: remaining,
	}
	if !result.Allowed {
		result.RetryAfter = time.Until(windowStart.Add(l.window))
	}
	return result, nil
}

// Close closes the Redis client.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
