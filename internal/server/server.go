// Package server exposes the routing engine over HTTP: a data plane for
// submitting operations and a control plane for health and diagnostics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avroute/internal/config"
	"github.com/vyrodovalexey/avroute/internal/health"
	"github.com/vyrodovalexey/avroute/internal/observability"
	"github.com/vyrodovalexey/avroute/internal/router"
)

// Server wraps the HTTP listener and its gin engine.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	router     *router.Router
	checker    *health.Checker
	logger     observability.Logger
}

// New creates a server over the given router and health checker.
func New(cfg config.ServerConfig, rt *router.Router, checker *health.Checker, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(recoveryMiddleware(logger), loggingMiddleware(logger))

	s := &Server{
		engine:  engine,
		router:  rt,
		checker: checker,
		logger:  logger,
		httpServer: &http.Server{
			Addr:         cfg.Address,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout.Duration(),
			WriteTimeout: cfg.WriteTimeout.Duration(),
		},
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/route", s.handleRoute)

	s.engine.GET("/healthz", gin.WrapF(s.checker.LivenessHandler()))
	s.engine.GET("/readyz", gin.WrapF(s.checker.ReadinessHandler()))
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/breakers", s.handleBreakers)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the HTTP server until it is shut down. It returns nil on
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		observability.String("address", s.httpServer.Addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware emits one access log line per request.
func loggingMiddleware(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", c.Writer.Status()),
			observability.Duration("duration", time.Since(start)),
		)
	}
}

// recoveryMiddleware converts handler panics into 500 responses.
func recoveryMiddleware(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic",
					observability.Any("panic", rec),
					observability.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
