package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payflow_active_sessions",
		Help: "The number of payment sessions currently alive",
	})

	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_sessions_expired_total",
		Help: "The total number of sessions expired due to inactivity",
	})

	QuotesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_quotes_created_total",
		Help: "The total number of quotes created by currency pair",
	}, []string{"source_currency", "destination_currency"})

	QuotesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_quotes_expired_total",
		Help: "The total number of quotes that reached their validity window",
	})

	QuotesInvalidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_quotes_invalidated_total",
		Help: "The total number of quotes discarded due to input changes",
	})

	StaleFeeResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_stale_fee_results_total",
		Help: "Fee lookup results dropped because the quote generation moved on",
	})

	ResolutionCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_resolution_calls_total",
		Help: "The total number of account resolution calls issued",
	})

	StaleResolutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_stale_resolutions_total",
		Help: "Resolution results dropped because the debounced pair changed",
	})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_submissions_total",
		Help: "The total number of transfer submissions by outcome",
	}, []string{"outcome"})

	SubmissionRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_submissions_rejected_total",
		Help: "Submit attempts rejected because one was already in flight",
	})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_provider_errors_total",
		Help: "Total number of provider errors by operation",
	}, []string{"operation"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payflow_provider_request_seconds",
		Help:    "Latency of provider calls",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"operation"})

	StageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_stage_transitions_total",
		Help: "Stage transitions by target stage",
	}, []string{"stage"})
)
