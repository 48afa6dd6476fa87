package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avroute/internal/balancer"
	"github.com/vyrodovalexey/avroute/internal/circuitbreaker"
	"github.com/vyrodovalexey/avroute/internal/health"
	"github.com/vyrodovalexey/avroute/internal/observability"
	"github.com/vyrodovalexey/avroute/internal/pool"
	"github.com/vyrodovalexey/avroute/internal/ratelimit"
)

// Executor performs the downstream operation over an acquired connection.
// The router treats both the request message and the response as opaque.
type Executor interface {
	Execute(ctx context.Context, conn *pool.Connection, req *Request) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, conn *pool.Connection, req *Request) (any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, conn *pool.Connection, req *Request) (any, error) {
	return f(ctx, conn, req)
}

// Router ties the balancer, the connection pool, and the executor together
// into a single Route entry point.
type Router struct {
	pool     *pool.Pool
	balancer *balancer.Balancer
	executor Executor
	limiter  ratelimit.Limiter
	logger   observability.Logger
	tracer   *observability.Tracer
}

// Option is a functional option for configuring the router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithTracer enables span creation around routed operations.
func WithTracer(tracer *observability.Tracer) Option {
	return func(r *Router) {
		r.tracer = tracer
	}
}

// WithRateLimiter enables per-endpoint rate limiting.
func WithRateLimiter(limiter ratelimit.Limiter) Option {
	return func(r *Router) {
		r.limiter = limiter
	}
}

// New creates a router over the given pool, balancer, and executor.
func New(p *pool.Pool, b *balancer.Balancer, executor Executor, opts ...Option) (*Router, error) {
	if p == nil {
		return nil, fmt.Errorf("router: pool is required")
	}
	if b == nil {
		return nil, fmt.Errorf("router: balancer is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("router: executor is required")
	}

	r := &Router{
		pool:     p,
		balancer: b,
		executor: executor,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Route runs one operation end to end: validate, select an endpoint, acquire
// a connection, execute, record the outcome on the endpoint's breaker, and
// release the connection. The connection is released on every path out of
// this method, including cancellation and executor panics.
//
// Failures come back as *RoutingError with a Code classifying the stage that
// failed. A denied or failed route never leaks a connection slot.
func (r *Router) Route(ctx context.Context, req *Request) (result *Result, err error) {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		OperationErrorsTotal.WithLabelValues(string(CodeValidation)).Inc()
		return nil, err
	}

	operationID := req.OperationID
	if operationID == "" {
		operationID = uuid.NewString()
	}

	if r.tracer != nil {
		var span oteltrace.Span
		ctx, span = r.tracer.StartSpan(ctx, "router.route",
			oteltrace.WithAttributes(
				attribute.String("operation.id", operationID),
				attribute.String("routing.strategy", string(req.Strategy)),
				attribute.Int("routing.candidates", len(req.Endpoints)),
			),
		)
		defer span.End()
	}

	r.logger.Debug("operation received",
		observability.String("operation_id", operationID),
		observability.String("strategy", string(req.Strategy)),
		observability.Int("candidates", len(req.Endpoints)),
	)

	endpoint, err := r.balancer.SelectWith(req.Strategy, req.Endpoints)
	if err != nil {
		return nil, r.fail(operationID, endpoint, newRoutingError(
			CodeValidation, "endpoint selection failed", err,
			"operation_id", operationID,
			"strategy", string(req.Strategy),
		))
	}

	if r.limiter != nil {
		decision, limitErr := r.limiter.Allow(ctx, endpoint)
		if limitErr != nil {
			// A broken limiter backend must not take the data plane
			// down with it. Log and let the request through.
			r.logger.Warn("rate limit check failed, allowing request",
				observability.String("endpoint", endpoint),
				observability.Error(limitErr),
			)
		} else if !decision.Allowed {
			return nil, r.fail(operationID, endpoint, newRoutingError(
				CodeRateLimited, "endpoint rate limit exceeded", nil,
				"operation_id", operationID,
				"endpoint", endpoint,
				"retry_after", decision.RetryAfter.String(),
			))
		}
	}

	conn, err := r.acquire(ctx, req, endpoint)
	if err != nil {
		return nil, r.fail(operationID, endpoint, r.classifyAcquireError(operationID, endpoint, err))
	}
	defer r.pool.Release(endpoint, conn)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.pool.Breaker(endpoint).CallTimeout()
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response, err := r.execute(execCtx, conn, req)
	if err != nil {
		if req.CircuitBreakerEnabled {
			r.pool.RecordFailure(endpoint)
		}
		return nil, r.fail(operationID, endpoint, newRoutingError(
			CodeExecutionFailed, "operation execution failed", err,
			"operation_id", operationID,
			"endpoint", endpoint,
		))
	}

	if req.CircuitBreakerEnabled {
		r.pool.RecordSuccess(endpoint)
	}

	elapsed := time.Since(start)
	OperationsTotal.WithLabelValues(endpoint, "success").Inc()
	OperationDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	r.logger.Debug("operation completed",
		observability.String("operation_id", operationID),
		observability.String("endpoint", endpoint),
		observability.Duration("response_time", elapsed),
	)

	return &Result{
		Response:         response,
		OperationID:      operationID,
		Strategy:         req.Strategy,
		SelectedEndpoint: endpoint,
		ResponseTime:     elapsed,
		EndpointsTried:   []string{endpoint},
	}, nil
}

// acquire gets a connection through or around the endpoint's breaker
// depending on the request.
func (r *Router) acquire(ctx context.Context, req *Request, endpoint string) (*pool.Connection, error) {
	if req.CircuitBreakerEnabled {
		return r.pool.Get(ctx, endpoint)
	}
	return r.pool.GetUngated(ctx, endpoint)
}

// execute runs the executor, converting a panic into an error so the
// deferred Release in Route still reconciles the connection slot.
func (r *Router) execute(ctx context.Context, conn *pool.Connection, req *Request) (response any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor panic: %v", rec)
		}
	}()
	return r.executor.Execute(ctx, conn, req)
}

// classifyAcquireError maps pool acquisition failures onto routing codes.
func (r *Router) classifyAcquireError(operationID, endpoint string, err error) *RoutingError {
	var circuitErr *pool.CircuitOpenError
	if errors.As(err, &circuitErr) {
		return newRoutingError(CodeCircuitOpen, "circuit breaker denied attempt", err,
			"operation_id", operationID,
			"endpoint", endpoint,
			"breaker_state", circuitErr.State.String(),
		)
	}

	if errors.Is(err, pool.ErrPoolExhausted) {
		return newRoutingError(CodePoolExhausted, "connection pool exhausted", err,
			"operation_id", operationID,
			"endpoint", endpoint,
		)
	}

	return newRoutingError(CodeConnectionFailed, "connection establishment failed", err,
		"operation_id", operationID,
		"endpoint", endpoint,
	)
}

// fail records metrics and logs for a failed route and returns the error.
func (r *Router) fail(operationID, endpoint string, routingErr *RoutingError) error {
	if endpoint == "" {
		endpoint = "none"
	}
	OperationsTotal.WithLabelValues(endpoint, "error").Inc()
	OperationErrorsTotal.WithLabelValues(string(routingErr.Code)).Inc()

	r.logger.Warn("operation failed",
		observability.String("operation_id", operationID),
		observability.String("endpoint", endpoint),
		observability.String("code", string(routingErr.Code)),
		observability.Error(routingErr),
	)
	return routingErr
}

// validateRequest rejects malformed requests before any resource is touched.
func validateRequest(req *Request) error {
	if req == nil {
		return newRoutingError(CodeValidation, "request is nil", nil)
	}
	if len(req.Endpoints) == 0 {
		return newRoutingError(CodeValidation, "no endpoints provided", nil)
	}
	if req.Strategy != "" && !req.Strategy.Valid() {
		return newRoutingError(CodeValidation, "unknown load balancing strategy", nil,
			"strategy", string(req.Strategy),
		)
	}
	return nil
}

// BreakerDetail describes one endpoint's circuit breaker for diagnostics.
type BreakerDetail struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// HealthStatus is the router's diagnostic snapshot. Producing it never
// fails.
type HealthStatus struct {
	Status              health.Status            `json:"status"`
	ActiveConnections   int                      `json:"active_connections"`
	MaxConnections      int                      `json:"max_connections"`
	OpenCircuitBreakers int                      `json:"open_circuit_breakers"`
	TotalEndpoints      int                      `json:"total_endpoints"`
	Breakers            map[string]BreakerDetail `json:"breakers"`
}

// Health reports the router's current condition: healthy with no open
// breakers, degraded with some open, critical with every known endpoint
// open.
func (r *Router) Health() *HealthStatus {
	stats := r.pool.BreakerStats()

	open := 0
	breakers := make(map[string]BreakerDetail, len(stats))
	for endpoint, s := range stats {
		if s.State == circuitbreaker.StateOpen {
			open++
		}
		breakers[endpoint] = BreakerDetail{
			State:           s.State.String(),
			FailureCount:    s.FailureCount,
			LastFailureTime: s.LastFailureTime,
		}
	}

	status := health.StatusHealthy
	switch {
	case len(stats) > 0 && open == len(stats):
		status = health.StatusCritical
	case open > 0:
		status = health.StatusDegraded
	}

	return &HealthStatus{
		Status:              status,
		ActiveConnections:   r.pool.ActiveConnections(),
		MaxConnections:      r.pool.MaxConnections(),
		OpenCircuitBreakers: open,
		TotalEndpoints:      len(stats),
		Breakers:            breakers,
	}
}

// MetricsSnapshot is a point-in-time view of the router's resource usage.
type MetricsSnapshot struct {
	ActiveConnections   int `json:"active_connections"`
	MaxConnections      int `json:"max_connections"`
	CircuitBreakerTrips int `json:"circuit_breaker_trips"`
}

// Metrics returns current resource usage. Never fails.
func (r *Router) Metrics() *MetricsSnapshot {
	return &MetricsSnapshot{
		ActiveConnections:   r.pool.ActiveConnections(),
		MaxConnections:      r.pool.MaxConnections(),
		CircuitBreakerTrips: r.pool.OpenBreakers(),
	}
}

// Cleanup releases pooled connections. Idempotent; used at shutdown.
func (r *Router) Cleanup() {
	r.pool.CloseAll()
	r.logger.Info("router cleaned up")
}
