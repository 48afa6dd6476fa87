package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolActiveConnections tracks the global connection count against the cap.
	PoolActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connection_pool_active_connections",
			Help: "Number of connections counted against the global cap",
		},
	)

	// PoolExhaustedTotal counts admissions denied because the cap was reached.
	PoolExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_pool_exhausted_total",
			Help: "Total number of acquisitions denied due to pool exhaustion",
		},
	)

	// PoolConnectionsCreatedTotal counts connections dialed per endpoint.
	PoolConnectionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_pool_connections_created_total",
			Help: "Total number of connections created",
		},
		[]string{"endpoint"},
	)

	// PoolConnectionsReusedTotal counts idle connections handed back out.
	PoolConnectionsReusedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_pool_connections_reused_total",
			Help: "Total number of idle connections reused",
		},
		[]string{"endpoint"},
	)

	// PoolConnectionsClosedTotal counts connections closed per endpoint.
	PoolConnectionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_pool_connections_closed_total",
			Help: "Total number of connections closed",
		},
		[]string{"endpoint"},
	)
)
