package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avroute/internal/balancer"
	"github.com/vyrodovalexey/avroute/internal/router"
)

// routeRequest is the data plane request body.
type routeRequest struct {
	Message               string   `json:"message" binding:"required"`
	Endpoints             []string `json:"endpoints" binding:"required,min=1"`
	OperationID           string   `json:"operation_id"`
	Strategy              string   `json:"strategy"`
	TimeoutMs             int      `json:"timeout_ms"`
	RetryEnabled          bool     `json:"retry_enabled"`
	MaxRetries            int      `json:"max_retries"`
	CircuitBreakerEnabled *bool    `json:"circuit_breaker_enabled"`
}

// routeResponse is the data plane response body.
type routeResponse struct {
	Response         any    `json:"response"`
	OperationID      string `json:"operation_id"`
	SelectedEndpoint string `json:"selected_endpoint"`
	Strategy         string `json:"strategy"`
	ResponseTimeMs   int64  `json:"response_time_ms"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handleRoute(c *gin.Context) {
	var body routeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    string(router.CodeValidation),
			Message: err.Error(),
		})
		return
	}

	req := router.NewRequest([]byte(body.Message), body.Endpoints)
	req.OperationID = body.OperationID
	req.RetryEnabled = body.RetryEnabled
	req.MaxRetries = body.MaxRetries
	if body.Strategy != "" {
		req.Strategy = balancer.Strategy(body.Strategy)
	}
	if body.TimeoutMs > 0 {
		req.Timeout = time.Duration(body.TimeoutMs) * time.Millisecond
	}
	if body.CircuitBreakerEnabled != nil {
		req.CircuitBreakerEnabled = *body.CircuitBreakerEnabled
	}

	result, err := s.router.Route(c.Request.Context(), req)
	if err != nil {
		s.writeRoutingError(c, err)
		return
	}

	c.JSON(http.StatusOK, routeResponse{
		Response:         result.Response,
		OperationID:      result.OperationID,
		SelectedEndpoint: result.SelectedEndpoint,
		Strategy:         string(result.Strategy),
		ResponseTimeMs:   result.ResponseTime.Milliseconds(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.router.Health())
}

func (s *Server) handleBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, s.router.Health().Breakers)
}

// writeRoutingError maps routing error codes to HTTP statuses.
func (s *Server) writeRoutingError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := errorResponse{Message: err.Error()}

	var routingErr *router.RoutingError
	if errors.As(err, &routingErr) {
		body.Code = string(routingErr.Code)
		body.Message = routingErr.Message
		body.Context = routingErr.Context

		switch routingErr.Code {
		case router.CodeValidation:
			status = http.StatusBadRequest
		case router.CodeCircuitOpen, router.CodePoolExhausted:
			status = http.StatusServiceUnavailable
		case router.CodeRateLimited:
			status = http.StatusTooManyRequests
		case router.CodeConnectionFailed, router.CodeExecutionFailed:
			status = http.StatusBadGateway
		}
	}

	c.JSON(status, body)
}
