package task

import (
	"context"

	"github.com/frahmantamala/document-management/internal/core/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_tasks_total",
			Help: "Background task lifecycle transitions by task name and state",
		},
		[]string{"task", "state"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dm_task_duration_seconds",
			Help:    "Duration of finished background tasks in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"task", "state"},
	)
)

// SubscribeMetrics records task lifecycle events published on bus.
func SubscribeMetrics(bus *events.EventBus) {
	record := func(state State) events.Handler {
		return func(_ context.Context, e events.Event) error {
			te, ok := e.(*events.TaskEvent)
			if !ok {
				return nil
			}
			tasksTotal.WithLabelValues(te.TaskName, string(state)).Inc()
			if state != StateStarted {
				taskDuration.WithLabelValues(te.TaskName, string(state)).Observe(te.Duration.Seconds())
			}
			return nil
		}
	}
	bus.Subscribe(events.EventTypeTaskStarted, record(StateStarted))
	bus.Subscribe(events.EventTypeTaskSucceeded, record(StateSuccess))
	bus.Subscribe(events.EventTypeTaskFailed, record(StateFailure))
}
