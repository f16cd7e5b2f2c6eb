package settlement

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskSettleEvent    = "settlement:settle_event"
	TaskProcessPending = "settlement:process_pending"
	TaskExpirePoints   = "settlement:expire_points"
)

type SettleEventPayload struct {
	EventID string `json:"event_id"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewSettleEventTask builds the task enqueued when an event's result is
// announced and its rewards should be settled asynchronously.
func NewSettleEventTask(eventID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SettleEventPayload{EventID: eventID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettleEvent, payload, asynq.Queue("settlement")), nil
}
