package pool

import (
	"context"
	"sync"

	"github.com/vyrodovalexey/avroute/internal/circuitbreaker"
	"github.com/vyrodovalexey/avroute/internal/observability"
)

// Config holds connection pool configuration.
type Config struct {
	// MaxConnections is the global connection cap shared across all
	// endpoints. Immutable after construction.
	MaxConnections int

	// MaxIdlePerEndpoint is the number of idle connections pooled per
	// endpoint before released connections are closed instead.
	MaxIdlePerEndpoint int

	// BreakerConfig is the fixed factory configuration for lazily
	// created per-endpoint circuit breakers.
	BreakerConfig *circuitbreaker.Config

	// Dialer establishes transports. Defaults to NetDialer.
	Dialer Dialer
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:     100,
		MaxIdlePerEndpoint: 10,
		BreakerConfig:      circuitbreaker.DefaultConfig(),
		Dialer:             NetDialer{},
	}
}

// Validate normalizes the configuration.
func (c *Config) Validate() error {
	if c.MaxConnections < 1 {
		c.MaxConnections = 100
	}
	if c.MaxIdlePerEndpoint < 1 {
		c.MaxIdlePerEndpoint = 10
	}
	if c.BreakerConfig == nil {
		c.BreakerConfig = circuitbreaker.DefaultConfig()
	}
	if c.Dialer == nil {
		c.Dialer = NetDialer{}
	}
	return nil
}

// Pool bounds total concurrent connections and isolates failing endpoints
// behind per-endpoint circuit breakers.
//
// The active counter tracks every live connection, idle or lent out; it is
// incremented when a connection is created and decremented only when one is
// closed, so 0 <= active <= MaxConnections holds for any interleaving of
// Get and Release.
type Pool struct {
	config *Config
	logger observability.Logger

	mu       sync.Mutex
	active   int
	idle     map[string][]*Connection
	states   map[string]ConnState
	breakers map[string]*circuitbreaker.CircuitBreaker
}

// New creates a new connection pool.
func New(config *Config, logger observability.Logger) *Pool {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Pool{
		config:   config,
		logger:   logger,
		idle:     make(map[string][]*Connection),
		states:   make(map[string]ConnState),
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

// Breaker returns the circuit breaker for endpoint, creating it from the
// pool's fixed factory config on first reference.
func (p *Pool) Breaker(endpoint string) *circuitbreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.breakerLocked(endpoint)
}

func (p *Pool) breakerLocked(endpoint string) *circuitbreaker.CircuitBreaker {
	br, ok := p.breakers[endpoint]
	if !ok {
		br = circuitbreaker.NewCircuitBreaker(endpoint, p.config.BreakerConfig, p.logger)
		p.breakers[endpoint] = br
	}
	return br
}

// Get acquires a connection for endpoint, gated by the endpoint's circuit
// breaker. It returns a *CircuitOpenError when the breaker denies the
// attempt, ErrPoolExhausted when the global cap is reached with no idle
// connection, and a *ConnectionCreationError when dialing fails.
func (p *Pool) Get(ctx context.Context, endpoint string) (*Connection, error) {
	return p.acquire(ctx, endpoint, true)
}

// GetUngated acquires a connection without consulting the circuit breaker.
// Used for requests that disable circuit breaking.
func (p *Pool) GetUngated(ctx context.Context, endpoint string) (*Connection, error) {
	return p.acquire(ctx, endpoint, false)
}

func (p *Pool) acquire(ctx context.Context, endpoint string, gated bool) (*Connection, error) {
	br := p.Breaker(endpoint)

	if gated && !br.CanAttempt() {
		return nil, &CircuitOpenError{Endpoint: endpoint, State: br.State()}
	}

	p.mu.Lock()

	// Reuse an idle, still-open connection if one exists. Reuse does not
	// touch the active counter: idle connections are already counted.
	for {
		conns := p.idle[endpoint]
		if len(conns) == 0 {
			break
		}
		conn := conns[len(conns)-1]
		p.idle[endpoint] = conns[:len(conns)-1]

		if conn.IsClosed() {
			p.active--
			if p.active < 0 {
				p.active = 0
			}
			PoolActiveConnections.Set(float64(p.active))
			PoolConnectionsClosedTotal.WithLabelValues(endpoint).Inc()
			continue
		}

		conn.setState(ConnStateActive)
		p.states[endpoint] = ConnStateActive
		p.mu.Unlock()

		PoolConnectionsReusedTotal.WithLabelValues(endpoint).Inc()
		return conn, nil
	}

	// Admission control: deny immediately at the cap, never queue.
	if p.active >= p.config.MaxConnections {
		p.states[endpoint] = ConnStateOverloaded
		active, limit := p.active, p.config.MaxConnections
		p.mu.Unlock()

		PoolExhaustedTotal.Inc()
		p.logger.Warn("connection pool exhausted",
			observability.String("endpoint", endpoint),
			observability.Int("active_connections", active),
			observability.Int("max_connections", limit),
		)
		return nil, ErrPoolExhausted
	}

	// Reserve the slot before dialing so concurrent acquisitions cannot
	// overshoot the cap while the dial is in flight.
	p.active++
	PoolActiveConnections.Set(float64(p.active))
	p.mu.Unlock()

	transport, err := p.config.Dialer.Dial(ctx, endpoint, br.CallTimeout())
	if err != nil {
		p.mu.Lock()
		p.active--
		if p.active < 0 {
			p.active = 0
		}
		p.states[endpoint] = ConnStateFailed
		PoolActiveConnections.Set(float64(p.active))
		p.mu.Unlock()

		br.RecordFailure()
		return nil, &ConnectionCreationError{Endpoint: endpoint, Err: err}
	}

	conn := newConnection(endpoint, transport)
	conn.setState(ConnStateActive)

	p.mu.Lock()
	p.states[endpoint] = ConnStateActive
	p.mu.Unlock()

	PoolConnectionsCreatedTotal.WithLabelValues(endpoint).Inc()
	p.logger.Debug("connection created",
		observability.String("endpoint", endpoint),
		observability.Int64("connection_id", conn.ID()),
	)
	return conn, nil
}

// Release returns a connection to the pool. An already-closed connection
// only gives its slot back; an open one is re-pooled up to the per-endpoint
// idle limit and closed beyond it. Release always reconciles the slot, on
// success and failure paths alike.
func (p *Pool) Release(endpoint string, conn *Connection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn.IsClosed() {
		p.active--
		if p.active < 0 {
			p.active = 0
		}
		PoolActiveConnections.Set(float64(p.active))
		PoolConnectionsClosedTotal.WithLabelValues(endpoint).Inc()
		return
	}

	if len(p.idle[endpoint]) < p.config.MaxIdlePerEndpoint {
		conn.setState(ConnStateIdle)
		p.states[endpoint] = ConnStateIdle
		p.idle[endpoint] = append(p.idle[endpoint], conn)
		return
	}

	_ = conn.Close()
	p.active--
	if p.active < 0 {
		p.active = 0
	}
	PoolActiveConnections.Set(float64(p.active))
	PoolConnectionsClosedTotal.WithLabelValues(endpoint).Inc()
}

// RecordSuccess records a successful operation against the endpoint's
// circuit breaker.
func (p *Pool) RecordSuccess(endpoint string) {
	p.Breaker(endpoint).RecordSuccess()
}

// RecordFailure records a failed operation against the endpoint's circuit
// breaker.
func (p *Pool) RecordFailure(endpoint string) {
	p.Breaker(endpoint).RecordFailure()
}

// CloseAll closes every idle connection, clears the idle lists, and resets
// the active counter. Circuit breakers survive for the pool's lifetime.
// Idempotent; used at shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for endpoint, conns := range p.idle {
		for _, conn := range conns {
			_ = conn.Close()
			PoolConnectionsClosedTotal.WithLabelValues(endpoint).Inc()
		}
	}
	p.idle = make(map[string][]*Connection)
	p.active = 0
	PoolActiveConnections.Set(0)

	p.logger.Info("connection pool closed")
}

// ActiveConnections returns the current global connection count.
func (p *Pool) ActiveConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// MaxConnections returns the global connection cap.
func (p *Pool) MaxConnections() int {
	return p.config.MaxConnections
}

// OpenBreakers returns the number of circuit breakers currently open.
func (p *Pool) OpenBreakers() int {
	p.mu.Lock()
	breakers := make([]*circuitbreaker.CircuitBreaker, 0, len(p.breakers))
	for _, br := range p.breakers {
		breakers = append(breakers, br)
	}
	p.mu.Unlock()

	open := 0
	for _, br := range breakers {
		if br.State() == circuitbreaker.StateOpen {
			open++
		}
	}
	return open
}

// BreakerStats returns a snapshot of every known endpoint's breaker.
func (p *Pool) BreakerStats() map[string]circuitbreaker.Stats {
	p.mu.Lock()
	breakers := make(map[string]*circuitbreaker.CircuitBreaker, len(p.breakers))
	for endpoint, br := range p.breakers {
		breakers[endpoint] = br
	}
	p.mu.Unlock()

	stats := make(map[string]circuitbreaker.Stats, len(breakers))
	for endpoint, br := range breakers {
		stats[endpoint] = br.Stats()
	}
	return stats
}

// EndpointState returns the last known connection state for endpoint.
func (p *Pool) EndpointState(endpoint string) (ConnState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[endpoint]
	return s, ok
}
