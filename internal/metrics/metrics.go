// Package metrics exposes pipeline counters on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_created_total",
		Help: "Jobs created, by kind.",
	}, []string{"kind"})

	DuplicateSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_duplicate_submissions_total",
		Help: "Submissions collapsed onto an existing job by the idempotency key.",
	})

	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_dispatches_total",
		Help: "Outbound deliveries to the workflow engine, by outcome.",
	}, []string{"outcome"})

	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_callbacks_total",
		Help: "Worker result callbacks, by outcome.",
	}, []string{"outcome"})

	StaleTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_stale_transitions_total",
		Help: "Conditional status updates rejected by the concurrency guard.",
	})

	DanglingCorrelations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_dangling_correlations_total",
		Help: "Results that arrived for an unknown or deleted job.",
	})

	ForcedStatuses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_forced_statuses_total",
		Help: "Administrative status overrides, by target status.",
	}, []string{"status"})
)
