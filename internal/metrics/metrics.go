// Package metrics exposes Prometheus collectors for the odds crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerItemsTotal              *prometheus.CounterVec
	crawlerItemDurationSeconds     prometheus.Histogram
	crawlerNavigationAttemptsTotal *prometheus.CounterVec
	crawlerBatchesTotal            prometheus.Counter
	crawlerSessionRecyclesTotal    prometheus.Counter
	crawlerDatasetsTotal           *prometheus.CounterVec
	crawlerInflightItems           prometheus.Gauge
	crawlerRateLimitDelaysSeconds  *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "odds_crawler_items_total",
				Help: "Match items processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerItemDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "odds_crawler_item_duration_seconds",
				Help:    "Wall time spent on one match item.",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160},
			},
		)

		crawlerNavigationAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "odds_crawler_navigation_attempts_total",
				Help: "Navigation attempts, labeled by result.",
			},
			[]string{"result"},
		)

		crawlerBatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "odds_crawler_batches_total",
				Help: "Batches dispatched by the executor.",
			},
		)

		crawlerSessionRecyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "odds_crawler_session_recycles_total",
				Help: "Browser sessions torn down and recreated between batches.",
			},
		)

		crawlerDatasetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "odds_crawler_datasets_total",
				Help: "Crawl targets finished, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		crawlerInflightItems = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "odds_crawler_inflight_items",
				Help: "Match items currently being fetched.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "odds_crawler_rate_limit_delays_seconds",
				Help:    "Histogram of navigation rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// SanitizeSite extracts a lowercase hostname from a locator.
// It returns "unknown" if the locator is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem records one finished match item.
func ObserveItem(outcome string, duration time.Duration) {
	Init()
	crawlerItemsTotal.WithLabelValues(outcome).Inc()
	crawlerItemDurationSeconds.Observe(duration.Seconds())
}

// ObserveNavigation records one navigation attempt.
func ObserveNavigation(result string) {
	Init()
	crawlerNavigationAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveBatch counts a dispatched batch.
func ObserveBatch() {
	Init()
	crawlerBatchesTotal.Inc()
}

// ObserveSessionRecycle counts a session teardown and recreation.
func ObserveSessionRecycle() {
	Init()
	crawlerSessionRecyclesTotal.Inc()
}

// ObserveDataset counts a finished crawl target.
func ObserveDataset(kind, status string) {
	Init()
	crawlerDatasetsTotal.WithLabelValues(kind, status).Inc()
}

// IncInflight increments the in-flight items gauge.
func IncInflight() {
	Init()
	crawlerInflightItems.Inc()
}

// DecInflight decrements the in-flight items gauge.
func DecInflight() {
	Init()
	crawlerInflightItems.Dec()
}

// ObserveRateLimitDelay records time spent waiting on a domain limiter.
func ObserveRateLimitDelay(site string, delay time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(SanitizeSite(site)).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
