// Package metrics exposes Prometheus collectors for the stock tracker.
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
	sweepsTotal            *prometheus.CounterVec
	sweepDurationSeconds   prometheus.Histogram
	productsScrapedTotal   *prometheus.CounterVec
	fetchesTotal           *prometheus.CounterVec
	availabilityUpserts    *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDurationSec *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sweepsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocktracker_sweeps_total",
				Help: "Total number of sweeps run, labeled by terminal status.",
			},
			[]string{"status"},
		)

		sweepDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stocktracker_sweep_duration_seconds",
				Help:    "Histogram of full sweep durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)

		productsScrapedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocktracker_products_scraped_total",
				Help: "Total number of per-product extractions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocktracker_fetches_total",
				Help: "Total number of outbound page fetches, labeled by result.",
			},
			[]string{"result"},
		)

		availabilityUpserts = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocktracker_availability_upserts_total",
				Help: "Total availability upserts, labeled created or updated.",
			},
			[]string{"op"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSec = promauto.NewHistogramVec(
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

// ObserveSweep records a finished sweep with its terminal status.
func ObserveSweep(status string, duration time.Duration) {
	sweepsTotal.WithLabelValues(status).Inc()
	sweepDurationSeconds.Observe(duration.Seconds())
}

// ObserveProductScrape counts one per-product extraction outcome.
func ObserveProductScrape(outcome string) {
	productsScrapedTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch counts one outbound fetch result ("ok", "status", "network").
func ObserveFetch(result string) {
	fetchesTotal.WithLabelValues(result).Inc()
}

// ObserveUpsert counts an availability write ("created" or "updated").
func ObserveUpsert(op string) {
	availabilityUpserts.WithLabelValues(op).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSec.WithLabelValues(method, route).Observe(duration.Seconds())
}
