package settlement

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestHandleSettleEventTask(t *testing.T) {
	h := newHarness(t)
	seedResultEvent(t, h, "ev-1")

	task, err := NewSettleEventTask("ev-1")
	require.NoError(t, err)
	require.Equal(t, TaskSettleEvent, task.Type())

	handler := NewTask(TaskParams{Service: h.svc, Points: h.points})
	require.NoError(t, handler.HandleSettleEventTask(context.Background(), task))

	details, err := h.results.Details(context.Background(), "ev-1")
	require.NoError(t, err)
	for _, d := range details {
		require.True(t, d.RewardProcessed)
	}
}

func TestHandleSettleEventTaskBadPayload(t *testing.T) {
	h := newHarness(t)

	handler := NewTask(TaskParams{Service: h.svc, Points: h.points})
	bad := asynq.NewTask(TaskSettleEvent, []byte("{not json"))
	require.Error(t, handler.HandleSettleEventTask(context.Background(), bad))
}

// captureEnqueuer records enqueued tasks instead of talking to redis.
type captureEnqueuer struct {
	tasks []*asynq.Task
}

func (c *captureEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: "settlement"}, nil
}

func TestScheduleSettlement(t *testing.T) {
	h := newHarness(t)

	require.Error(t, h.svc.ScheduleSettlement("ev-1"))

	queue := &captureEnqueuer{}
	h.svc.queue = queue
	require.NoError(t, h.svc.ScheduleSettlement("ev-1"))
	require.Len(t, queue.tasks, 1)
	require.Equal(t, TaskSettleEvent, queue.tasks[0].Type())
}
