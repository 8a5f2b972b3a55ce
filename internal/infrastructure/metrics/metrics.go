// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_http_requests_total",
			Help: "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docgate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	queryBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_query_batches_total",
			Help: "Membership batches sent to the document store.",
		},
		[]string{"path"},
	)
	queryBatchSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docgate_query_batch_duration_seconds",
			Help:    "Latency of one membership batch in seconds.",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"path"},
	)
	documentsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_documents_emitted_total",
			Help: "Documents written to query responses.",
		},
		[]string{"path"},
	)
	probeRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docgate_query_probe_rejections_total",
			Help: "Queries rejected because the backend cannot serve the filter.",
		},
	)
	documentWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_document_writes_total",
			Help: "Write path outcomes per document.",
		},
		[]string{"outcome"},
	)
	cacheResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_cache_results_total",
			Help: "Collaborator cache lookups by cache and result.",
		},
		[]string{"cache", "result"},
	)
)

// ObserveHTTP records one finished request.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	httpRequestSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// CacheResult counts a hit or miss for the named cache.
func CacheResult(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheResultsTotal.WithLabelValues(cache, result).Inc()
}

// Recorder implements the data service's metrics hooks.
type Recorder struct{}

func (Recorder) BatchFetched(path string, d time.Duration) {
	queryBatchesTotal.WithLabelValues(path).Inc()
	queryBatchSeconds.WithLabelValues(path).Observe(d.Seconds())
}

func (Recorder) DocumentsEmitted(path string, n int) {
	documentsEmittedTotal.WithLabelValues(path).Add(float64(n))
}

func (Recorder) ProbeRejected() {
	probeRejectionsTotal.Inc()
}

func (Recorder) DocumentWritten(outcome string) {
	documentWritesTotal.WithLabelValues(outcome).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
