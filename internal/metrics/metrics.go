// Package metrics holds the Prometheus collectors exported on /metrics
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rectify"

var (
	// GatewayCalls counts model gateway attempts.
	// Labels: provider, outcome (ok, transient, error)
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Model gateway attempts by outcome",
	}, []string{"provider", "outcome"})

	// GatewayLatency measures single-attempt latency
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "latency_seconds",
		Help:      "Model gateway attempt latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider"})

	// GatewayRetries counts retries scheduled after transient failures
	GatewayRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "retries_total",
		Help:      "Retries scheduled after transient gateway failures",
	}, []string{"provider"})

	// StageDuration measures pipeline stage latency.
	// Labels: stage, status (ok, failed, skipped)
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"stage", "status"})

	// Runs counts finished pipeline runs.
	// Labels: result (success, failed)
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Finished pipeline runs by result",
	}, []string{"result"})

	// Verdicts counts claim verdicts.
	// Labels: verdict, fallback (true when the model output was unusable)
	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verify",
		Name:      "verdicts_total",
		Help:      "Claim verdicts by value",
	}, []string{"verdict", "fallback"})

	// EvidenceHits measures snippets returned per retrieval
	EvidenceHits = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retrieve",
		Name:      "snippets",
		Help:      "Evidence snippets returned per claim",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
	})

	// CacheLookups counts response and embedding cache lookups.
	// Labels: cache (llm, embed), result (hit, miss)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by cache and result",
	}, []string{"cache", "result"})
)

// ObserveGatewayCall records one gateway attempt
func ObserveGatewayCall(provider, outcome string, d time.Duration) {
	GatewayCalls.WithLabelValues(provider, outcome).Inc()
	GatewayLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveStage records a finished pipeline stage
func ObserveStage(stage, status string, d time.Duration) {
	StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// ObserveRun records a finished pipeline run
func ObserveRun(success bool) {
	if success {
		Runs.WithLabelValues("success").Inc()
		return
	}
	Runs.WithLabelValues("failed").Inc()
}

// ObserveCacheLookup records one cache lookup
func ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}
