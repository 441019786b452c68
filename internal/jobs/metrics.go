// Package jobmetrics instruments background task handlers.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded per task run.
const (
	OutcomeSuccess = "success"
	// OutcomeRetry is a failure asynq will retry.
	OutcomeRetry = "retry"
	// OutcomeDropped is a failure wrapped in asynq.SkipRetry.
	OutcomeDropped = "dropped"
)

// Metrics holds the worker collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

// NewMetrics registers the task collectors on registerer. A nil registerer
// yields nil, which disables instrumentation.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return nil
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solkant_task_runs_total",
			Help: "Worker task runs by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solkant_task_duration_seconds",
			Help:    "Worker task run duration.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solkant_task_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per task type.",
		}, []string{"task"}),
		now: time.Now,
	}
	registerer.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// Tracker measures one task run.
type Tracker struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Track starts measuring a run of task.
func (m *Metrics) Track(task string) *Tracker {
	if m == nil {
		return &Tracker{task: task}
	}
	return &Tracker{metrics: m, task: task, start: m.now()}
}

// End records the run outcome and returns err unchanged so it can be used in
// a deferred assignment.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	m := t.metrics
	end := m.now()
	outcome := Outcome(err)
	m.runs.WithLabelValues(t.task, outcome).Inc()
	m.duration.WithLabelValues(t.task).Observe(end.Sub(t.start).Seconds())
	if outcome == OutcomeSuccess {
		m.lastSuccess.WithLabelValues(t.task).Set(float64(end.Unix()))
	}
	return err
}

// Outcome classifies a handler result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeDropped
	default:
		return OutcomeRetry
	}
}
