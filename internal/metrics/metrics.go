// Package metrics exposes Prometheus collectors for the lead pipeline service.
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
	pipelineRunsTotal          *prometheus.CounterVec
	pipelineStageSeconds       *prometheus.HistogramVec
	candidatesTotal            *prometheus.CounterVec
	deepVisitsTotal            *prometheus.CounterVec
	modelAttemptsTotal         *prometheus.CounterVec
	scoredCandidatesTotal      *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_pipeline_runs_total",
				Help: "Total number of pipeline runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pipelineStageSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadgen_pipeline_stage_seconds",
				Help:    "Histogram of pipeline stage durations, labeled by stage.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_candidates_total",
				Help: "Total number of candidates discovered, labeled by source.",
			},
			[]string{"source"},
		)

		deepVisitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_deep_visits_total",
				Help: "Total number of candidate website visits, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		modelAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_model_attempts_total",
				Help: "Total number of completion attempts, labeled by model and outcome.",
			},
			[]string{"model", "outcome"},
		)

		scoredCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_scored_candidates_total",
				Help: "Total number of scored candidates, labeled by scoring method.",
			},
			[]string{"method"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadgen_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// ObservePipelineRun increments the run counter for the given outcome.
func ObservePipelineRun(outcome string) {
	Init()
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	pipelineStageSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveCandidates adds n discovered candidates for source.
func ObserveCandidates(source string, n int) {
	Init()
	if n > 0 {
		candidatesTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveDeepVisit increments the deep visit counter.
func ObserveDeepVisit(outcome string) {
	Init()
	deepVisitsTotal.WithLabelValues(outcome).Inc()
}

// ObserveModelAttempt increments the per-model attempt counter.
func ObserveModelAttempt(model, outcome string) {
	Init()
	modelAttemptsTotal.WithLabelValues(model, outcome).Inc()
}

// ObserveScored adds n candidates scored with method ("model" or "heuristic").
func ObserveScored(method string, n int) {
	Init()
	if n > 0 {
		scoredCandidatesTotal.WithLabelValues(method).Add(float64(n))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
