// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curatarr_job_runs_total",
			Help: "Total number of job executions by outcome",
		},
		[]string{"job", "kind", "outcome"}, // "success", "failure", "skipped"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curatarr_job_duration_seconds",
			Help:    "Duration of job executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "curatarr_jobs_running",
			Help: "Number of jobs currently executing",
		},
	)

	// Providers
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curatarr_provider_calls_total",
			Help: "Total number of outbound provider calls by result",
		},
		[]string{"provider", "result"}, // "ok", "unreachable", "unauthorized", "malformed", "rejected"
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curatarr_provider_call_duration_seconds",
			Help:    "Duration of outbound provider calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "curatarr_circuit_breaker_state",
			Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
		[]string{"provider"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curatarr_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)

	// Pipeline
	SuggestionsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curatarr_suggestions_saved_total",
			Help: "Total number of novel suggestions persisted",
		},
		[]string{"media_type"},
	)

	SuggestionsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curatarr_suggestions_dropped_total",
			Help: "Total number of malformed candidates dropped during validation",
		},
	)

	GenerationTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curatarr_generation_tokens_total",
			Help: "Total number of tokens consumed by generation providers",
		},
		[]string{"provider", "type"}, // "prompt", "completion"
	)

	// History
	HistoryEntriesSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curatarr_history_entries_synced_total",
			Help: "Total number of new watch history entries stored",
		},
		[]string{"provider"},
	)
)

// RecordJob records the outcome and duration of one job execution.
func RecordJob(job, kind string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	JobRuns.WithLabelValues(job, kind, outcome).Inc()
	JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordProviderCall records the result label and latency of one outbound call.
func RecordProviderCall(provider, result string, d time.Duration) {
	ProviderCalls.WithLabelValues(provider, result).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordUsage adds the token counts of one generation call.
func RecordUsage(provider string, prompt, completion int) {
	GenerationTokens.WithLabelValues(provider, "prompt").Add(float64(prompt))
	GenerationTokens.WithLabelValues(provider, "completion").Add(float64(completion))
}
