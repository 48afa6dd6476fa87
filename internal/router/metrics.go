package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts routed operations by endpoint and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_operations_total",
			Help: "Total number of routed operations",
		},
		[]string{"endpoint", "result"},
	)

	// OperationDuration observes end-to-end routing latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "router_operation_duration_seconds",
			Help: "Routing operation duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"endpoint"},
	)

	// OperationErrorsTotal counts failures by error code.
	OperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_operation_errors_total",
			Help: "Total number of routing failures by error code",
		},
		[]string{"code"},
	)
)
