// Package metrics exposes Prometheus collectors for the visibility pipeline.
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
	pipelineStagesTotal        *prometheus.CounterVec
	pipelineStageSeconds       *prometheus.HistogramVec
	modelCallsTotal            *prometheus.CounterVec
	modelCallSeconds           *prometheus.HistogramVec
	modelTokensTotal           *prometheus.CounterVec
	visibilityScore            *prometheus.GaugeVec
	qidLookupsTotal            *prometheus.CounterVec
	publishOutcomesTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	retriesTotal               *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineStagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stages_total",
				Help: "Total number of pipeline stage executions, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		pipelineStageSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Histogram of pipeline stage durations, labeled by stage.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		)

		modelCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_calls_total",
				Help: "Total number of model calls, labeled by provider, model and outcome.",
			},
			[]string{"provider", "model", "outcome"},
		)

		modelCallSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "model_call_duration_seconds",
				Help:    "Histogram of model call latencies, labeled by provider.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"provider"},
		)

		modelTokensTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_tokens_total",
				Help: "Total tokens consumed by model calls, labeled by provider and model.",
			},
			[]string{"provider", "model"},
		)

		visibilityScore = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "visibility_score",
				Help: "Most recent visibility score per business.",
			},
			[]string{"business_id"},
		)

		qidLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qid_lookups_total",
				Help: "Total QID resolutions, labeled by tier (memory, store, static, remote, miss).",
			},
			[]string{"tier"},
		)

		publishOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publish_outcomes_total",
				Help: "Total publish attempts, labeled by outcome (created, conflict, gated, failed).",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
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

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retries_total",
				Help: "Total retry attempts, labeled by operation.",
			},
			[]string{"operation"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStage records one pipeline stage execution.
func ObserveStage(stage, outcome string, duration time.Duration) {
	if pipelineStagesTotal == nil {
		return
	}
	pipelineStagesTotal.WithLabelValues(stage, outcome).Inc()
	pipelineStageSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveModelCall records one model invocation.
func ObserveModelCall(provider, model, outcome string, tokens int, duration time.Duration) {
	if modelCallsTotal == nil {
		return
	}
	modelCallsTotal.WithLabelValues(provider, model, outcome).Inc()
	modelCallSeconds.WithLabelValues(provider).Observe(duration.Seconds())
	if tokens > 0 {
		modelTokensTotal.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

// SetVisibilityScore records the latest score for a business.
func SetVisibilityScore(businessID string, score float64) {
	if visibilityScore == nil {
		return
	}
	visibilityScore.WithLabelValues(businessID).Set(score)
}

// ObserveQIDLookup counts a resolution at the given cache tier.
func ObserveQIDLookup(tier string) {
	if qidLookupsTotal == nil {
		return
	}
	qidLookupsTotal.WithLabelValues(tier).Inc()
}

// ObservePublish counts a publish attempt outcome.
func ObservePublish(outcome string) {
	if publishOutcomesTotal == nil {
		return
	}
	publishOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP server metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRetry counts a retry attempt for an operation.
func ObserveRetry(operation string) {
	if retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(operation).Inc()
}
