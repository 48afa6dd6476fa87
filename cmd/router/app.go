package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vyrodovalexey/avroute/internal/balancer"
	"github.com/vyrodovalexey/avroute/internal/circuitbreaker"
	"github.com/vyrodovalexey/avroute/internal/config"
	"github.com/vyrodovalexey/avroute/internal/health"
	"github.com/vyrodovalexey/avroute/internal/observability"
	"github.com/vyrodovalexey/avroute/internal/pool"
	"github.com/vyrodovalexey/avroute/internal/ratelimit"
	"github.com/vyrodovalexey/avroute/internal/router"
	"github.com/vyrodovalexey/avroute/internal/server"
)

// application wires the routing engine components together.
type application struct {
	cfg      *config.Config
	logger   observability.Logger
	tracer   *observability.Tracer
	pool     *pool.Pool
	balancer *balancer.Balancer
	router   *router.Router
	limiter  ratelimit.Limiter
	checker  *health.Checker
	server   *server.Server
}

// newApplication builds the full component graph from configuration.
func newApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	tracer, err := observability.NewTracer(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	p := pool.New(&pool.Config{
		MaxConnections:     cfg.Pool.MaxConnections,
		MaxIdlePerEndpoint: cfg.Pool.MaxIdlePerEndpoint,
		BreakerConfig: circuitbreaker.DefaultConfig().
			WithFailureThreshold(cfg.CircuitBreaker.FailureThreshold).
			WithRecoveryTimeout(cfg.CircuitBreaker.RecoveryTimeout.Duration()).
			WithCallTimeout(cfg.CircuitBreaker.CallTimeout.Duration()),
		Dialer: pool.NetDialer{},
	}, logger)

	b := balancer.New(balancer.Strategy(cfg.Balancer.Strategy))

	limiter, err := buildLimiter(cfg.RateLimit, logger)
	if err != nil {
		return nil, err
	}

	opts := []router.Option{
		router.WithLogger(logger),
		router.WithTracer(tracer),
	}
	if limiter != nil {
		opts = append(opts, router.WithRateLimiter(limiter))
	}

	rt, err := router.New(p, b, tcpExecutor{}, opts...)
	if err != nil {
		return nil, err
	}

	checker := health.NewChecker(version)
	checker.RegisterCheck("router", func() health.Check {
		status := rt.Health()
		return health.Check{
			Status: status.Status,
			Message: fmt.Sprintf("%d/%d connections, %d open breakers",
				status.ActiveConnections, status.MaxConnections, status.OpenCircuitBreakers),
		}
	})

	srv := server.New(cfg.Server, rt, checker, logger)

	return &application{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		pool:     p,
		balancer: b,
		router:   rt,
		limiter:  limiter,
		checker:  checker,
		server:   srv,
	}, nil
}

// buildLimiter creates the configured rate limiter, or nil when disabled.
func buildLimiter(cfg *config.RateLimitConfig, logger observability.Logger) (ratelimit.Limiter, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Backend {
	case config.RateLimitBackendRedis:
		redisCfg := ratelimit.DefaultRedisConfig()
		redisCfg.Address = cfg.Redis.Address
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		if cfg.Redis.Prefix != "" {
			redisCfg.Prefix = cfg.Redis.Prefix
		}
		return ratelimit.NewRedisLimiter(redisCfg, cfg.RequestsPerSecond, cfg.Window.Duration(), logger)
	default:
		return ratelimit.NewLocalLimiter(cfg.RequestsPerSecond, cfg.Burst,
			ratelimit.WithLocalLogger(logger)), nil
	}
}

// deadlineTransport is implemented by transports that support I/O deadlines.
type deadlineTransport interface {
	SetWriteDeadline(time.Time) error
	SetReadDeadline(time.Time) error
}

// tcpExecutor sends the request message over the pooled transport and reads
// one response frame back.
type tcpExecutor struct{}

func (tcpExecutor) Execute(ctx context.Context, conn *pool.Connection, req *router.Request) (any, error) {
	transport := conn.Transport()

	deadline, hasDeadline := ctx.Deadline()
	if dt, ok := transport.(deadlineTransport); ok && hasDeadline {
		if err := dt.SetWriteDeadline(deadline); err != nil {
			return nil, fmt.Errorf("failed to set write deadline: %w", err)
		}
		if err := dt.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	if _, err := transport.Write(req.Message); err != nil {
		// A failed write leaves the stream in an unknown state.
		_ = conn.Close()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	buf := make([]byte, 64*1024)
	n, err := transport.Read(buf)
	if err != nil && err != io.EOF {
		_ = conn.Close()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	return string(buf[:n]), nil
}
