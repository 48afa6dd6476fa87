package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avroute/internal/observability"
)

// Local limiter defaults.
const (
	// DefaultKeyTTL is the default TTL for per-key limiter entries.
	DefaultKeyTTL = 10 * time.Minute

	// MinCleanupInterval is the minimum interval for cleanup runs.
	MinCleanupInterval = 10 * time.Second

	// MaxCleanupInterval is the maximum interval for cleanup runs.
	MaxCleanupInterval = time.Minute
)

// keyEntry holds a limiter and its last access time for TTL-based cleanup.
type keyEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LocalLimiter rate-limits per key using in-process token buckets.
type LocalLimiter struct {
	rps    int
	burst  int
	logger observability.Logger

	mu     sync.Mutex
	keys   map[string]*keyEntry
	keyTTL time.Duration

	stopCh  chan struct{}
	stopped bool
}

// LocalOption is a functional option for configuring the local limiter.
type LocalOption func(*LocalLimiter)

// WithLocalLogger sets the logger for the local limiter.
func WithLocalLogger(logger observability.Logger) LocalOption {
	return func(l *LocalLimiter) {
		l.logger = logger
	}
}

// WithKeyTTL sets the TTL for idle per-key limiter entries.
func WithKeyTTL(ttl time.Duration) LocalOption {
	return func(l *LocalLimiter) {
		l.keyTTL = ttl
	}
}

// NewLocalLimiter creates a per-key token bucket limiter and starts the
// TTL cleanup goroutine. Call Close when done.
func NewLocalLimiter(rps, burst int, opts ...LocalOption) *LocalLimiter {
	l := &LocalLimiter{
		rps:    rps,
		burst:  burst,
		logger: observability.NopLogger(),
		keys:   make(map[string]*keyEntry),
		keyTTL: DefaultKeyTTL,
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()

	return l
}

// Allow implements Limiter.
func (l *LocalLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	now := time.Now()

	l.mu.Lock()
	entry, exists := l.keys[key]
	if !exists {
		entry = &keyEntry{
			limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst),
		}
		l.keys[key] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	l.mu.Unlock()

	// Allow is thread-safe on the limiter itself.
	allowed := limiter.Allow()

	result := &Result{
		Allowed:   allowed,
		Remaining: int(limiter.Tokens()),
	}
	if !allowed {
		result.RetryAfter = time.Second
	}
	return result, nil
}

// cleanupLoop periodically removes idle per-key entries.
func (l *LocalLimiter) cleanupLoop() {
	interval := l.keyTTL / 2
	if interval > MaxCleanupInterval {
		interval = MaxCleanupInterval
	}
	if interval < MinCleanupInterval {
		interval = MinCleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup removes entries that have not been accessed within the TTL.
func (l *LocalLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range l.keys {
		if now.Sub(entry.lastAccess) > l.keyTTL {
			delete(l.keys, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("cleaned up idle rate limiter entries",
			observability.Int("removed", removed),
			observability.Int("remaining", len(l.keys)),
		)
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *LocalLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.stopped {
		l.stopped = true
		close(l.stopCh)
	}
	return nil
}
