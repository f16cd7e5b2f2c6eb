package settlement

import (
	"context"
	"time"

	"rewardengine/pkg/config"
	"rewardengine/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler drives the recurring settlement sweep. Point crediting never runs
// on a request path; a crashed sweep simply resumes on the next tick.
type Scheduler struct {
	svc  *Service
	lock sweepLock
	cfg  *config.Config
}

// sweepLock serializes sweeps across instances. Acquire takes the lock for at
// most ttl; Release frees it early so the next tick is not skipped.
type sweepLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context)
}

type redisSweepLock struct {
	rdb *redis.Client
}

func (l *redisSweepLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, rediskey.SweepLockKey, "1", ttl).Result()
}

func (l *redisSweepLock) Release(ctx context.Context) {
	if err := l.rdb.Del(ctx, rediskey.SweepLockKey).Err(); err != nil {
		zap.L().Warn("[Scheduler] failed to release sweep lock", zap.Error(err))
	}
}

type SchedulerParams struct {
	fx.In
	Service *Service
	Redis   *redis.Client `optional:"true"`
	Config  *config.Config
}

func NewScheduler(p SchedulerParams) *Scheduler {
	s := &Scheduler{
		svc: p.Service,
		cfg: p.Config,
	}
	if p.Redis != nil {
		s.lock = &redisSweepLock{rdb: p.Redis}
	}
	return s
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	interval := s.cfg.Rewards.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	zap.L().Info("[Scheduler] settlement sweep started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx, interval)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] settlement sweep stopped")
			return
		}
	}
}

// sweep runs one ProcessPending pass. A redis lock keeps overlapping sweeps
// across instances from chewing the same batch; the per-record claim update
// still guarantees no double-processing if the lock is unavailable.
func (s *Scheduler) sweep(ctx context.Context, interval time.Duration) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, interval)
		if err != nil {
			zap.L().Warn("[Scheduler] sweep lock unavailable, proceeding", zap.Error(err))
		} else if !acquired {
			return
		} else {
			// The ttl only covers a holder that dies mid-sweep. Release as
			// soon as the pass is done.
			defer s.lock.Release(ctx)
		}
	}

	start := time.Now()
	summary, err := s.svc.ProcessPending(ctx)
	if err != nil {
		zap.L().Error("[Scheduler] sweep failed", zap.Error(err))
		return
	}

	if summary.ProcessedCount > 0 || summary.FailedCount > 0 {
		zap.L().Info("[Scheduler] sweep finished",
			zap.Duration("duration", time.Since(start)),
			zap.Int("processed", summary.ProcessedCount),
			zap.Int("failed", summary.FailedCount),
		)
	}
}
