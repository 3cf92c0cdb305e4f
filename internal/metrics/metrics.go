// Package metrics provides Prometheus metrics for the trending pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshTotal counts refresh phases by outcome.
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trending",
			Name:      "refresh_total",
			Help:      "Total number of refresh phases by outcome",
		},
		[]string{"phase", "status"},
	)

	// PhaseDuration measures how long each refresh phase takes.
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trending",
			Name:      "phase_duration_seconds",
			Help:      "Duration of refresh phases in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	// FetchBatchesTotal counts search batches by outcome.
	FetchBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trending",
			Name:      "fetch_batches_total",
			Help:      "Total number of search batches by outcome",
		},
		[]string{"status"},
	)

	// CandidatePool tracks the size of the last deduplicated candidate pool.
	CandidatePool = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trending",
			Name:      "candidate_pool_size",
			Help:      "Number of candidate posts after dedup and truncation",
		},
	)

	// SnapshotTopics tracks topic counts of the last persisted snapshot per phase.
	SnapshotTopics = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "trending",
			Name:      "snapshot_topics",
			Help:      "Number of topics in the last persisted snapshot",
		},
		[]string{"phase"},
	)

	// LLMClusterTotal counts LLM clustering attempts by outcome.
	LLMClusterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trending",
			Name:      "llm_cluster_total",
			Help:      "Total number of LLM clustering attempts by outcome",
		},
		[]string{"status"},
	)
)

// RecordPhase records a completed or failed refresh phase.
func RecordPhase(phase, status string, seconds float64) {
	RefreshTotal.WithLabelValues(phase, status).Inc()
	PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordBatch records the outcome of one search batch.
func RecordBatch(status string) {
	FetchBatchesTotal.WithLabelValues(status).Inc()
}

// RecordLLM records the outcome of one LLM clustering attempt.
func RecordLLM(status string) {
	LLMClusterTotal.WithLabelValues(status).Inc()
}

// SetSnapshot records the topic count of a persisted snapshot.
func SetSnapshot(phase string, topics int) {
	SnapshotTopics.WithLabelValues(phase).Set(float64(topics))
}
