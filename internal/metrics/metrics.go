// Package metrics records build pipeline metrics in Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
)

var (
	// limiterTasks tracks scheduler task outcomes: completed, failed, queue_timeout, cancelled.
	limiterTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sekolah_limiter_tasks_total",
		Help: "Total number of scheduler tasks by limiter and outcome",
	}, []string{"limiter", "outcome"})

	// limiterQueueDepth tracks the number of tasks waiting for a slot.
	limiterQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sekolah_limiter_queue_depth",
		Help: "Number of tasks waiting for a scheduler slot",
	}, []string{"limiter"})

	// breakerTransitions counts circuit breaker state changes.
	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sekolah_circuit_breaker_transitions_total",
		Help: "Total number of circuit breaker state transitions",
	}, []string{"breaker", "from", "to"})

	// breakerState is 0 closed, 1 open, 2 half-open.
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sekolah_circuit_breaker_state",
		Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"breaker"})

	// fileOps counts guarded file operations.
	fileOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sekolah_file_operations_total",
		Help: "Total number of guarded file operations by operation and outcome",
	}, []string{"op", "outcome"})

	// fileOpDuration tracks guarded file operation latency including retries.
	fileOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sekolah_file_operation_duration_seconds",
		Help:    "Time taken by guarded file operations including retries",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"op"})

	// pages counts rendered school pages by outcome: written, failed, skipped.
	pages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sekolah_pages_total",
		Help: "Total number of school pages by outcome",
	}, []string{"outcome"})

	// buildDuration tracks full build runs.
	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sekolah_build_duration_seconds",
		Help:    "Time taken by a complete build run",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// brokenLinks counts broken links found by validation.
	brokenLinks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sekolah_broken_links_total",
		Help: "Total number of broken links by kind",
	}, []string{"kind"})
)

// Recorder records metrics. A nil *Recorder is valid and records nothing,
// so components can hold one unconditionally.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObserveTask records a scheduler task outcome.
func (r *Recorder) ObserveTask(limiter, outcome string) {
	if r == nil {
		return
	}
	limiterTasks.WithLabelValues(limiter, outcome).Inc()
}

// SetQueueDepth records the current queue depth of a limiter.
func (r *Recorder) SetQueueDepth(limiter string, depth int) {
	if r == nil {
		return
	}
	limiterQueueDepth.WithLabelValues(limiter).Set(float64(depth))
}

// ObserveFileOp records a guarded file operation.
func (r *Recorder) ObserveFileOp(op, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	fileOps.WithLabelValues(op, outcome).Inc()
	fileOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// WatchBreaker subscribes to cb's transitions.
func (r *Recorder) WatchBreaker(cb *resilience.CircuitBreaker) {
	if r == nil || cb == nil {
		return
	}
	breakerState.WithLabelValues(cb.Name()).Set(float64(cb.State()))
	cb.OnStateChange(func(change resilience.StateChange) {
		breakerTransitions.WithLabelValues(change.Breaker, change.From.String(), change.To.String()).Inc()
		breakerState.WithLabelValues(change.Breaker).Set(float64(change.To))
	})
}

// RecordPages adds n pages with the given outcome.
func (r *Recorder) RecordPages(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	pages.WithLabelValues(outcome).Add(float64(n))
}

// RecordBuildDuration records the duration of a build run.
func (r *Recorder) RecordBuildDuration(d time.Duration) {
	if r == nil {
		return
	}
	buildDuration.Observe(d.Seconds())
}

// RecordBrokenLinks adds n broken links of the given kind (internal, external).
func (r *Recorder) RecordBrokenLinks(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	brokenLinks.WithLabelValues(kind).Add(float64(n))
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
