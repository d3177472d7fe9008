// Package metrics holds the Prometheus collectors shared by the generation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	budgetUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beatreel_budget_used_dollars",
		Help: "Cumulative spend recorded by the credit ledger",
	})

	budgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beatreel_budget_remaining_dollars",
		Help: "Budget left before the ledger starts rejecting jobs",
	})

	budgetRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beatreel_budget_rejections_total",
		Help: "Gate checks that failed for lack of budget",
	}, []string{"kind"})

	jobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beatreel_jobs_total",
		Help: "Generation jobs by kind and terminal outcome",
	}, []string{"kind", "outcome"}) // outcome=completed|failed|timed_out|malformed|cancelled|submit_failed

	pollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beatreel_job_poll_attempts",
		Help:    "Status queries spent per job before it reached a terminal state",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 40},
	})

	runOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beatreel_runs_total",
		Help: "Orchestration runs by outcome",
	}, []string{"outcome"}) // outcome=completed|empty|failed|cancelled

	clipsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beatreel_clips_generated_total",
		Help: "Clips appended to run results",
	}, []string{"type"})
)

// SetBudget mirrors the ledger state.
func SetBudget(used, remaining float64) {
	budgetUsed.Set(used)
	budgetRemaining.Set(remaining)
}

func RecordBudgetRejection(kind string) {
	budgetRejections.WithLabelValues(kind).Inc()
}

func RecordJobOutcome(kind, outcome string) {
	jobOutcomes.WithLabelValues(kind, outcome).Inc()
}

func ObservePollAttempts(n int) {
	pollAttempts.Observe(float64(n))
}

func RecordRun(outcome string) {
	runOutcomes.WithLabelValues(outcome).Inc()
}

func RecordClip(clipType string) {
	clipsGenerated.WithLabelValues(clipType).Inc()
}
