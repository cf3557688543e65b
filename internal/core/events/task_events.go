package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskSucceeded = "task.succeeded"
	EventTypeTaskFailed    = "task.failed"
)

// TaskEvent reports one lifecycle transition of a background task.
type TaskEvent struct {
	BaseEvent
	TaskID   string        `json:"task_id"`
	TaskName string        `json:"task_name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

func NewTaskEvent(eventType, taskID, taskName string, duration time.Duration, err error) *TaskEvent {
	data := map[string]interface{}{
		"task_id":   taskID,
		"task_name": taskName,
		"duration":  duration.String(),
	}
	var msg string
	if err != nil {
		msg = err.Error()
		data["error"] = msg
	}
	return &TaskEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		TaskID:   taskID,
		TaskName: taskName,
		Duration: duration,
		Error:    msg,
	}
}
