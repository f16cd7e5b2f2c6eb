package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rewardengine/services/point"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var TaskModule = fx.Module("task.settlement",
	fx.Provide(NewTask),
)

type Task struct {
	svc    *Service
	points *point.Service
}

type TaskParams struct {
	fx.In

	Service *Service
	Points  *point.Service
}

func NewTask(p TaskParams) *Task {
	return &Task{
		svc:    p.Service,
		points: p.Points,
	}
}

func (t *Task) HandleSettleEventTask(ctx context.Context, task *asynq.Task) error {
	var payload SettleEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", task.Type()),
		zap.String("event_id", payload.EventID),
		zap.String("trace_id", payload.TraceID),
	)
	zapLog.Info("start settle event task")

	summary, err := t.svc.SettleEventRewards(ctx, payload.EventID)
	if err != nil {
		zapLog.Error("failed to settle event rewards", zap.Error(err))
		return err
	}

	zapLog.Info("event rewards settled",
		zap.Int("processed", summary.ProcessedCount),
		zap.Int("failed", summary.FailedCount),
		zap.Int64("points_granted", summary.TotalPointsGranted),
	)
	return nil
}

func (t *Task) HandleProcessPendingTask(ctx context.Context, task *asynq.Task) error {
	_, err := t.svc.ProcessPending(ctx)
	return err
}

func (t *Task) HandleExpirePointsTask(ctx context.Context, task *asynq.Task) error {
	_, err := t.points.ExpireDue(ctx, time.Now())
	return err
}
