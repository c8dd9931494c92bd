// Package metrics exposes the pipeline's Prometheus metrics: job
// throughput, scrape outcomes by kind, fetch latency, DLQ depth, and
// rate-governor wait time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every counter/histogram the pipeline records against.
type Registry struct {
	registry *prometheus.Registry

	JobsEnqueued    *prometheus.CounterVec
	ScrapeOutcomes  *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	DLQSize         prometheus.Gauge
	GovernorWait    prometheus.Histogram
}

// New builds a fresh Registry with all metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		registry: reg,

		JobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "jobs_enqueued_total",
			Help:      "Number of scrape jobs enqueued, labeled by origin.",
		}, []string{"origin"}),

		ScrapeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "scrape_outcomes_total",
			Help:      "Number of scrape outcomes, labeled by kind (SUCCESS or a failure kind).",
		}, []string{"kind"}),

		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pricewatch",
			Name:      "fetch_duration_seconds",
			Help:      "Fetch latency, labeled by tier (http or browser).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier"}),

		DLQSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricewatch",
			Name:      "dlq_size",
			Help:      "Current number of entries in the dead-letter queue.",
		}),

		GovernorWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pricewatch",
			Name:      "rate_governor_wait_seconds",
			Help:      "Time spent waiting for a rate-governor admission slot.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the HTTP handler to mount at the metrics exposition
// address (config.Config.MetricsAddr).
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
