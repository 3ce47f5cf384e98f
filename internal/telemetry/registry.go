package telemetry

import "github.com/prometheus/client_golang/prometheus"

// NewMetricsRegistry builds a Prometheus registry carrying the standard Go
// runtime collectors plus any additional collectors supplied by the caller.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
