package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricNamespace = "vmcp"

// Metrics holds the counters and gauges the admin surface's /metrics
// route exposes (section 6: "Prometheus exposition format").
type Metrics struct {
	BackendOpens      *prometheus.CounterVec
	BackendOpenErrors *prometheus.CounterVec
	BackendCloses     *prometheus.CounterVec
	IdleReaps         *prometheus.CounterVec
	DiscoverySweeps   prometheus.Counter
	LiveBackends      prometheus.Gauge
}

// NewMetrics registers every vmcp metric against reg and returns the
// handles used to update them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BackendOpens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(metricNamespace, "backend", "opens_total"),
			Help: "Number of successful backend transport opens, by backend name.",
		}, []string{"backend"}),
		BackendOpenErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(metricNamespace, "backend", "open_errors_total"),
			Help: "Number of failed backend transport opens, by backend name.",
		}, []string{"backend"}),
		BackendCloses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(metricNamespace, "backend", "closes_total"),
			Help: "Number of backend transport closes, by backend name and reason.",
		}, []string{"backend", "reason"}),
		IdleReaps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(metricNamespace, "backend", "idle_reaps_total"),
			Help: "Number of backends closed by the idle reaper, by backend name.",
		}, []string{"backend"}),
		DiscoverySweeps: factory.NewCounter(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(metricNamespace, "discovery", "sweeps_total"),
			Help: "Number of discovery sweeps run across all backends.",
		}),
		LiveBackends: factory.NewGauge(prometheus.GaugeOpts{
			Name: prometheus.BuildFQName(metricNamespace, "backend", "live"),
			Help: "Current number of backends with an open transport session.",
		}),
	}
}

// Handler returns the HTTP handler serving reg's metrics in
// Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
