// Package metrics exposes Prometheus collectors for the search service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlBytesTotal            *prometheus.CounterVec
	crawlFetchDurationSeconds  *prometheus.HistogramVec
	crawlParseFailuresTotal    *prometheus.CounterVec
	crawlPolitenessWaitSeconds *prometheus.HistogramVec
	crawlActiveWorkers         prometheus.Gauge
	queriesTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_pages_total",
				Help: "Total number of crawl attempts concluded, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		crawlBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_bytes_total",
				Help: "Total number of bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		crawlFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawl_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by host and status code.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"host", "code"},
		)

		crawlParseFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_parse_failures_total",
				Help: "Total number of pages whose extraction failed, labeled by host.",
			},
			[]string{"host"},
		)

		crawlPolitenessWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawl_politeness_wait_seconds",
				Help:    "Histogram of per-host politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		crawlActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)

		queriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queries_total",
				Help: "Total number of search queries served, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl increments the per-outcome crawl counter.
func ObserveCrawl(host, outcome string) {
	crawlPagesTotal.WithLabelValues(host, outcome).Inc()
}

// ObserveFetch records one completed page fetch.
func ObserveFetch(host string, code int, bytesFetched int, duration time.Duration) {
	if bytesFetched > 0 {
		crawlBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
	crawlFetchDurationSeconds.WithLabelValues(host, strconv.Itoa(code)).Observe(duration.Seconds())
}

// ObserveParseFailure increments the extraction failure counter.
func ObserveParseFailure(host string) {
	crawlParseFailuresTotal.WithLabelValues(host).Inc()
}

// ObservePolitenessWait records how long a worker waited on a host gate.
func ObservePolitenessWait(host string, duration time.Duration) {
	crawlPolitenessWaitSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlActiveWorkers.Dec()
}

// ObserveQuery increments the query counter for the given status.
func ObserveQuery(status string) {
	queriesTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
