// Package metrics exposes Prometheus collectors for the dataset pipeline.
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

// Fetch attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeStatus  = "bad_status"
	OutcomeError   = "error"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchFailuresTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	recordsTotal               *prometheus.CounterVec
	chunksTotal                *prometheus.CounterVec
	malformedLinesTotal        *prometheus.CounterVec
	stageProgress              *prometheus.GaugeVec
	activeWorkers              *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_fetch_attempts_total",
				Help: "Fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_fetch_failures_total",
				Help: "Identifiers that exhausted every attempt, labeled by site.",
			},
			[]string{"site"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_fetch_bytes_total",
				Help: "Bytes of page content fetched, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsroom_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_records_total",
				Help: "Records handled by a stage, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		chunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_chunks_total",
				Help: "Chunks committed to a store, labeled by stage.",
			},
			[]string{"stage"},
		)

		malformedLinesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_store_malformed_lines_total",
				Help: "Lines skipped because they failed to decode, labeled by store.",
			},
			[]string{"store"},
		)

		stageProgress = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "newsroom_stage_progress",
				Help: "Progress of the running stage, labeled by stage and state (total, done, failed).",
			},
			[]string{"stage", "state"},
		)

		activeWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "newsroom_active_workers",
				Help: "Number of workers currently processing an item.",
			},
			[]string{"stage"},
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid. Archive identifiers resolve to
// the archive host, which keeps label cardinality bounded.
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

// ObserveFetchAttempt records one transport attempt.
func ObserveFetchAttempt(site, outcome string, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	fetchAttemptsTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveFetchFailure records an identifier that exhausted its attempts.
func ObserveFetchFailure(site string) {
	Init()
	fetchFailuresTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRecords adds n records with the given outcome for a stage.
func ObserveRecords(stage, outcome string, n int) {
	if n <= 0 {
		return
	}
	Init()
	recordsTotal.WithLabelValues(stage, outcome).Add(float64(n))
}

// ObserveChunk counts one committed chunk.
func ObserveChunk(stage string) {
	Init()
	chunksTotal.WithLabelValues(stage).Inc()
}

// ObserveMalformed adds n skipped lines for a store.
func ObserveMalformed(store string, n int) {
	if n <= 0 {
		return
	}
	Init()
	malformedLinesTotal.WithLabelValues(store).Add(float64(n))
}

// SetProgress mirrors a stage's progress counters.
func SetProgress(stage string, total, done, failed int) {
	Init()
	stageProgress.WithLabelValues(stage, "total").Set(float64(total))
	stageProgress.WithLabelValues(stage, "done").Set(float64(done))
	stageProgress.WithLabelValues(stage, "failed").Set(float64(failed))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers(stage string) {
	Init()
	activeWorkers.WithLabelValues(stage).Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers(stage string) {
	Init()
	activeWorkers.WithLabelValues(stage).Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
