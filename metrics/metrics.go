// Package metrics exports task and group lifecycle events as Prometheus metrics.
package metrics

import (
	mend "github.com/UniQw/mend-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Revert attempt results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Collector is a mend.Observer backed by Prometheus collectors.
type Collector struct {
	tasksCreated   prometheus.Counter
	taskRetries    prometheus.Counter
	revertAttempts *prometheus.CounterVec
	taskOutcomes   *prometheus.CounterVec
	groupOutcomes  *prometheus.CounterVec
	groupSize      prometheus.Histogram
}

var _ mend.Observer = (*Collector)(nil)

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		tasksCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mend",
			Name:      "tasks_created_total",
			Help:      "Total tasks created",
		}),
		taskRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mend",
			Subsystem: "task",
			Name:      "retries_total",
			Help:      "Total retries across all tasks",
		}),
		// Labels: result (ok, rejected, error)
		revertAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mend",
			Subsystem: "task",
			Name:      "revert_attempts_total",
			Help:      "Total revert attempts by result",
		}, []string{"result"}),
		taskOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mend",
			Subsystem: "task",
			Name:      "outcomes_total",
			Help:      "Terminal task outcomes",
		}, []string{"outcome"}),
		groupOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mend",
			Subsystem: "group",
			Name:      "outcomes_total",
			Help:      "Terminal group outcomes",
		}, []string{"outcome"}),
		groupSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mend",
			Subsystem: "group",
			Name:      "size",
			Help:      "Number of tasks per group run",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
	}
}

// Observe implements mend.Observer.
func (c *Collector) Observe(e mend.Event) {
	switch e.Type {
	case mend.EventCreated:
		c.tasksCreated.Inc()
	case mend.EventRetry:
		c.taskRetries.Inc()
	case mend.EventRevert:
		c.revertAttempts.WithLabelValues(revertResult(e)).Inc()
	case mend.EventOutcome:
		c.taskOutcomes.WithLabelValues(e.Outcome.String()).Inc()
	case mend.EventGroupOutcome:
		c.groupOutcomes.WithLabelValues(e.Outcome.String()).Inc()
		c.groupSize.Observe(float64(e.Size))
	}
}

func revertResult(e mend.Event) string {
	switch {
	case e.Rejected:
		return ResultRejected
	case e.Err != nil:
		return ResultError
	default:
		return ResultOK
	}
}
