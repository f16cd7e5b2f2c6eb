package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"rewardengine/pkg/config"
	"rewardengine/pkg/db"
	"rewardengine/pkg/gen"
	"rewardengine/pkg/logger"
	"rewardengine/pkg/redis"
	"rewardengine/pkg/sequence"
	"rewardengine/pkg/task"
	"rewardengine/services/event"
	"rewardengine/services/outcome"
	"rewardengine/services/point"
	"rewardengine/services/result"
	"rewardengine/services/settlement"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		event.Module,
		outcome.Module,
		result.Module,
		point.Module,
		settlement.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
