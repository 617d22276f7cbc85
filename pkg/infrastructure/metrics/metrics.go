// Package metrics exposes Prometheus RED/USE metrics for the scheduler:
// counters for claim outcomes and terminal statuses, gauges for queue
// depth and permit usage, histograms for sweep and claim latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the executor and HTTP surfaces touch.
type Metrics struct {
	TasksClaimedTotal   *prometheus.CounterVec
	TasksCompletedTotal prometheus.Counter
	TasksFailedTotal    prometheus.Counter
	TasksSubmittedTotal prometheus.Counter

	QueueDepth        prometheus.Gauge
	SleepPermitsInUse prometheus.Gauge
	ExecPermitsInUse  prometheus.Gauge

	SweepDuration prometheus.Histogram
	ClaimLatency  prometheus.Histogram
}

// New registers and returns a fresh Metrics bundle against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the global
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksClaimedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasksched",
			Name:      "tasks_claimed_total",
			Help:      "Claim attempts by outcome (claimed, already_handled).",
		}, []string{"outcome"}),

		TasksCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasksched",
			Name:      "tasks_completed_total",
			Help:      "Tasks that reached status = done.",
		}),

		TasksFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasksched",
			Name:      "tasks_failed_total",
			Help:      "Tasks that reached status = failed.",
		}),

		TasksSubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasksched",
			Name:      "tasks_submitted_total",
			Help:      "Tasks created via the submission API.",
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tasksched",
			Name:      "queue_depth",
			Help:      "Current number of events buffered in the WorkQueue channel.",
		}),

		SleepPermitsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tasksched",
			Name:      "sleep_permits_in_use",
			Help:      "Sleep semaphore permits currently held.",
		}),

		ExecPermitsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tasksched",
			Name:      "exec_permits_in_use",
			Help:      "Exec semaphore permits currently held.",
		}),

		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tasksched",
			Name:      "sweep_duration_seconds",
			Help:      "Wall-clock duration of one Sweeper pass.",
			Buckets:   prometheus.DefBuckets,
		}),

		ClaimLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tasksched",
			Name:      "claim_latency_seconds",
			Help:      "Latency of a single store.Claim call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.TasksClaimedTotal,
		m.TasksCompletedTotal,
		m.TasksFailedTotal,
		m.TasksSubmittedTotal,
		m.QueueDepth,
		m.SleepPermitsInUse,
		m.ExecPermitsInUse,
		m.SweepDuration,
		m.ClaimLatency,
	)

	return m
}

// ObserveClaim records a claim's outcome and latency.
func (m *Metrics) ObserveClaim(claimed bool, d time.Duration) {
	outcome := "already_handled"
	if claimed {
		outcome = "claimed"
	}
	m.TasksClaimedTotal.WithLabelValues(outcome).Inc()
	m.ClaimLatency.Observe(d.Seconds())
}

// ObserveSweep records one Sweeper pass's duration.
func (m *Metrics) ObserveSweep(d time.Duration) {
	m.SweepDuration.Observe(d.Seconds())
}
