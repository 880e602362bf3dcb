package metrics

import "github.com/prometheus/client_golang/prometheus"

// Usage polling Prometheus metrics.
var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keymeter",
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream usage requests",
		},
		[]string{"status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "keymeter",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream usage request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	UpstreamRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "keymeter",
			Name:      "upstream_retries_total",
			Help:      "Total number of upstream retry attempts",
		},
	)

	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keymeter",
			Name:      "upstream_errors_total",
			Help:      "Total upstream errors by reason",
		},
		[]string{"reason"},
	)

	ReportCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keymeter",
			Name:      "report_cache_total",
			Help:      "Report cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	TrackedKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "keymeter",
			Name:      "tracked_keys",
			Help:      "Number of stored API credentials",
		},
	)
)

var usageMetricsRegistered bool

// RegisterUsageMetrics registers Prometheus usage metrics. Must be called once from main.
func RegisterUsageMetrics() {
	if usageMetricsRegistered {
		return
	}
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamRequestDuration)
	prometheus.MustRegister(UpstreamRetriesTotal)
	prometheus.MustRegister(UpstreamErrorsTotal)
	prometheus.MustRegister(ReportCacheTotal)
	prometheus.MustRegister(TrackedKeys)
	usageMetricsRegistered = true
}
