// Package metrics exposes Prometheus collectors for the grid scanner service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridrank_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridrank_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
		},
		[]string{"method", "route"},
	)

	cacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridrank_cache_events_total",
			Help: "Cache lookups and writes, labeled by cache name and event (hit, miss, expired, set).",
		},
		[]string{"cache", "event"},
	)

	upstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridrank_upstream_calls_total",
			Help: "Calls to external providers, labeled by upstream and outcome.",
		},
		[]string{"upstream", "outcome"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridrank_rate_limit_delay_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"upstream"},
	)

	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridrank_scans_total",
			Help: "Grid scans computed, labeled by mode (single, batch) and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	sampleRankTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridrank_sample_rank_total",
			Help: "Grid point samples, labeled by outcome (ranked, unranked, error).",
		},
		[]string{"outcome"},
	)

	siteFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridrank_site_fetches_total",
			Help: "Website intel fetches, labeled by detected platform and status class.",
		},
		[]string{"platform", "status"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StatusClass buckets an HTTP status into "2xx".."5xx"; anything else,
// including a fetch that produced no response, is "error".
func StatusClass(status int) string {
	if status < 200 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCache counts a cache event.
func ObserveCache(cache, event string) {
	cacheEventsTotal.WithLabelValues(cache, event).Inc()
}

// ObserveUpstream counts a provider call by outcome ("ok", "error", "empty").
func ObserveUpstream(upstream, outcome string) {
	upstreamCallsTotal.WithLabelValues(upstream, outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(upstream string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(upstream).Observe(duration.Seconds())
}

// ObserveScan counts a finished scan.
func ObserveScan(mode, outcome string) {
	scansTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveSample counts one grid point sample.
func ObserveSample(outcome string) {
	sampleRankTotal.WithLabelValues(outcome).Inc()
}

// ObserveSiteFetch counts a website intel fetch. platform must come from a
// fixed set of names; site hostnames are never used as labels.
func ObserveSiteFetch(platform string, status int) {
	siteFetchesTotal.WithLabelValues(platform, StatusClass(status)).Inc()
}
