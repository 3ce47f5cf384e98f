package telemetry

import "github.com/prometheus/client_golang/prometheus"

var ComputesCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "compute",
		Name:      "created_total",
		Help:      "Total number of computes created, by preset.",
	},
	[]string{"preset_id"},
)

var ComputesDeletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "compute",
		Name:      "deleted_total",
		Help:      "Total number of computes deleted, by reason.",
	},
	[]string{"reason"},
)

var ComputeCreateDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "compute",
		Name:      "create_duration_seconds",
		Help:      "Time to create and ready a compute workload.",
		Buckets:   prometheus.DefBuckets,
	},
)

var ProxyRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "proxy",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests proxied to computes, by status class.",
	},
	[]string{"status_class"},
)

var ProxyErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "proxy",
		Name:      "errors_total",
		Help:      "Total number of proxy errors, by kind.",
	},
	[]string{"kind"},
)

var WSConnectionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "gateway",
		Subsystem: "ws",
		Name:      "connections_active",
		Help:      "Number of currently open WebSocket proxy connections.",
	},
)

var WSTeardownsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "ws",
		Name:      "teardowns_total",
		Help:      "Total number of idle-teardown teardowns performed, by outcome.",
	},
	[]string{"outcome"},
)

var AuthFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "auth",
		Name:      "failures_total",
		Help:      "Total number of failed authentication attempts, by method.",
	},
	[]string{"method"},
)

// All returns all gateway-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		ComputesCreatedTotal,
		ComputesDeletedTotal,
		ComputeCreateDuration,
		ProxyRequestsTotal,
		ProxyErrorsTotal,
		WSConnectionsActive,
		WSTeardownsTotal,
		AuthFailuresTotal,
	}
}
