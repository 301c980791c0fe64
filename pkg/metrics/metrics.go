// Package metrics declares the Prometheus collectors the edge proxy emits:
// HTTP request counters, upstream call outcomes and consecutive-failure
// tracking, feature store commit counts, token cache size, and metrics
// aggregator bucket pressure.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unleash_edge"

var (
	// Registry holds every collector this package registers. Kept
	// separate from prometheus.DefaultRegisterer so tests can spin up
	// independent instances.
	Registry = prometheus.NewRegistry()

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of downstream HTTP requests handled.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of downstream HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"method", "path"})

	UpstreamCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "calls_total",
		Help:      "Total number of upstream calls, by call type and outcome.",
	}, []string{"call", "outcome"})

	UpstreamConsecutiveFailures = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "consecutive_failures",
		Help:      "Consecutive refresh failures, per environment.",
	}, []string{"environment"})

	FeatureStoreCommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "featurestore",
		Name:      "commits_total",
		Help:      "Feature store commit outcomes, by environment and result.",
	}, []string{"environment", "result"})

	TokenCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tokencache",
		Name:      "size",
		Help:      "Current number of cached tokens.",
	})

	MetricsBucketsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "metrics",
		Name:      "buckets_active",
		Help:      "Number of metrics buckets currently held in memory.",
	})

	MetricsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "metrics",
		Name:      "dropped_total",
		Help:      "Events dropped due to aggregator saturation or send failure, by reason.",
	}, []string{"reason"})

	MetricsSentBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "metrics",
		Name:      "sent_batches_total",
		Help:      "Metrics batches POSTed upstream, by outcome.",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamCallsTotal,
		UpstreamConsecutiveFailures,
		FeatureStoreCommitsTotal,
		TokenCacheSize,
		MetricsBucketsActive,
		MetricsDroppedTotal,
		MetricsSentBatchesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler returns the Prometheus text exposition handler for
// /internal-backstage/metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
