package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"rewardengine/pkg/config"
	"rewardengine/pkg/db/option"
	"rewardengine/pkg/errutil"
	"rewardengine/pkg/repository"
	"rewardengine/pkg/sequence"
	"rewardengine/pkg/task"
	"rewardengine/services/event"
	"rewardengine/services/outcome"
	"rewardengine/services/point"
	"rewardengine/services/result"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	pendingBatchSize = 100

	// processingLease bounds how long a claimed record may sit in processing.
	// Past the lease the claim is presumed dead and the record goes back to
	// the pending pool.
	processingLease = 5 * time.Minute
)

// PointLedger is the crediting primitive settlement drives. Satisfied by
// *point.Service; tests substitute a failing stub to exercise retries.
type PointLedger interface {
	Credit(ctx context.Context, p point.CreditParams) (*point.PointTransaction, error)
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	cfg  *config.Config

	points  PointLedger
	events  *event.Service
	results *result.Service
	seq     sequence.Generator
	queue   task.Enqueuer

	rewards repository.Repository[RewardEvent]
	badges  repository.Repository[UserBadge]
	coupons repository.Repository[CouponIssue]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Points  *point.Service
	Events  *event.Service
	Results *result.Service
	Seq     sequence.Generator `optional:"true"`
	Queue   task.Enqueuer      `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		cfg:     p.Config,
		points:  p.Points,
		events:  p.Events,
		results: p.Results,
		seq:     p.Seq,
		queue:   p.Queue,

		rewards: repository.ProvideStore[RewardEvent](p.DB),
		badges:  repository.ProvideStore[UserBadge](p.DB),
		coupons: repository.ProvideStore[CouponIssue](p.DB),
	}
}

type SubmitParams struct {
	UserID       string
	EventID      string
	SubmissionID *string
	RewardType   RewardType
	Points       int64
	BadgePoints  int64
}

// Submit inserts a pending reward event. Dedup and the daily/monthly caps are
// checked here, at submission time, so a burst of duplicate triggers is
// rejected before it ever enters the queue.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*RewardEvent, error) {
	if p.UserID == "" {
		return nil, errutil.BadRequest("user id is required", nil)
	}
	if p.Points <= 0 && p.BadgePoints <= 0 {
		return nil, errutil.BadRequest("reward must carry points or badge points", nil)
	}

	dup := s.db.WithContext(ctx).Model(&RewardEvent{}).
		Where("user_id = ? AND reward_type = ? AND status IN ?", p.UserID, p.RewardType, ActiveStatuses)
	if p.SubmissionID != nil {
		dup = dup.Where("submission_id = ?", *p.SubmissionID)
	} else {
		// No submission to key on (e.g. voter rewards): dedup per event.
		dup = dup.Where("submission_id IS NULL AND event_id = ?", p.EventID)
	}
	var count int64
	if err := dup.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errutil.Conflict("duplicate reward trigger", nil)
	}

	now := time.Now()
	if err := s.checkCap(ctx, p, startOfDay(now), s.cfg.Rewards.DailyCap, "daily reward cap reached"); err != nil {
		return nil, err
	}
	if err := s.checkCap(ctx, p, startOfMonth(now), s.cfg.Rewards.MonthlyCap, "monthly reward cap reached"); err != nil {
		return nil, err
	}

	key := dedupKey(p)
	re := &RewardEvent{
		ID:           s.node.Generate().String(),
		UserID:       p.UserID,
		EventID:      p.EventID,
		SubmissionID: p.SubmissionID,
		RewardType:   p.RewardType,
		Points:       p.Points,
		BadgePoints:  p.BadgePoints,
		Status:       StatusPending,
		DedupKey:     &key,
	}
	if err := s.rewards.Create(ctx, re); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent Submit slipped past the count above; the unique
			// index on dedup_key is the backstop.
			return nil, errutil.Conflict("duplicate reward trigger", err)
		}
		return nil, err
	}

	zap.L().Info("reward event submitted",
		zap.String("reward_event_id", re.ID),
		zap.String("user_id", p.UserID),
		zap.String("reward_type", string(p.RewardType)),
		zap.Int64("points", p.Points),
	)
	return re, nil
}

func (s *Service) checkCap(ctx context.Context, p SubmitParams, since time.Time, cap int, msg string) error {
	if cap <= 0 {
		return nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&RewardEvent{}).
		Where("user_id = ? AND reward_type = ? AND status IN ? AND created_at >= ?",
			p.UserID, p.RewardType, ActiveStatuses, since).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count >= int64(cap) {
		return errutil.TooManyRequest(msg, nil)
	}
	return nil
}

// ProcessPending sweeps pending reward events oldest first. Each record is
// claimed with a conditional update so a concurrent sweep can never pick it up
// twice. Records stuck in processing past the claim lease are reclaimed first.
func (s *Service) ProcessPending(ctx context.Context) (*Summary, error) {
	return s.processPendingScope(ctx, "")
}

func (s *Service) processPendingScope(ctx context.Context, eventID string) (*Summary, error) {
	s.reclaimStale(ctx, eventID)

	pending, err := s.rewards.Find(ctx, &RewardEvent{Status: StatusPending, EventID: eventID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(pendingBatchSize),
	)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, re := range pending {
		s.processOne(ctx, re, summary)
	}

	if summary.ProcessedCount > 0 || summary.FailedCount > 0 {
		fields := []zap.Field{
			zap.Int("processed", summary.ProcessedCount),
			zap.Int("failed", summary.FailedCount),
			zap.Int64("points_granted", summary.TotalPointsGranted),
		}
		if s.seq != nil {
			if batch, err := s.seq.NextSettlementBatch(ctx); err == nil {
				fields = append(fields, zap.String("batch", batch))
			}
		}
		zap.L().Info("settlement sweep finished", fields...)
	}
	return summary, nil
}

// reclaimStale returns records orphaned in processing to the pending pool. A
// sweep that dies after claiming would otherwise strand them forever: pending
// selection skips them and the dedup guard blocks resubmission.
func (s *Service) reclaimStale(ctx context.Context, eventID string) {
	q := s.db.WithContext(ctx).Model(&RewardEvent{}).
		Where("status = ? AND updated_at <= ?", StatusProcessing, time.Now().Add(-processingLease))
	if eventID != "" {
		q = q.Where("event_id = ?", eventID)
	}
	res := q.Update("status", StatusPending)
	if res.Error != nil {
		zap.L().Error("failed to reclaim stale reward events", zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 {
		zap.L().Warn("reclaimed stale processing reward events", zap.Int64("count", res.RowsAffected))
	}
}

func (s *Service) processOne(ctx context.Context, re *RewardEvent, summary *Summary) {
	claim := s.db.WithContext(ctx).Model(&RewardEvent{}).
		Where("id = ? AND status = ?", re.ID, StatusPending).
		Update("status", StatusProcessing)
	if claim.Error != nil {
		zap.L().Error("failed to claim reward event", zap.String("reward_event_id", re.ID), zap.Error(claim.Error))
		return
	}
	if claim.RowsAffected == 0 {
		// Someone else claimed it between the read and the update.
		return
	}

	if err := s.credit(ctx, re); err != nil {
		s.recordFailure(ctx, re, err)
		summary.FailedCount++
		return
	}

	// Badge crediting and the processed flip commit together: either the
	// record is processed and the badge granted, or neither happened and the
	// retry machinery takes over.
	now := time.Now()
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if re.BadgePoints > 0 {
			if err := s.creditBadge(ctx, tx, re.UserID, re.BadgePoints); err != nil {
				return err
			}
		}
		if err := tx.Model(&RewardEvent{}).Where("id = ?", re.ID).Updates(map[string]any{
			"status":       StatusProcessed,
			"processed_at": now,
		}).Error; err != nil {
			return err
		}
		if re.RewardType == TypeEventResult && re.SubmissionID != nil {
			// Flips at most once; the false predicate is the exactly-once guard.
			return tx.Model(&result.EventResultDetail{}).
				Where("event_id = ? AND user_id = ? AND submission_id = ? AND reward_processed = ?",
					re.EventID, re.UserID, *re.SubmissionID, false).
				Updates(map[string]any{
					"reward_processed":    true,
					"reward_processed_at": now,
				}).Error
		}
		return nil
	}); err != nil {
		s.recordFailure(ctx, re, err)
		summary.FailedCount++
		return
	}

	summary.ProcessedCount++
	summary.TotalPointsGranted += re.Points
}

func (s *Service) credit(ctx context.Context, re *RewardEvent) error {
	if re.Points <= 0 {
		return nil
	}

	if timeout := s.cfg.Rewards.CreditTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// The reward event id doubles as the idempotency key: a reclaimed record
	// whose previous claim already credited must not pay twice.
	var already int64
	if err := s.db.WithContext(ctx).Model(&point.PointTransaction{}).
		Where("reference_id = ?", re.ID).Count(&already).Error; err != nil {
		return err
	}
	if already > 0 {
		return nil
	}

	_, err := s.points.Credit(ctx, point.CreditParams{
		UserID:      re.UserID,
		Points:      re.Points,
		ReferenceID: re.ID,
		Description: "reward: " + string(re.RewardType),
		ExpireAt:    s.expiryDate(),
	})
	return err
}

func (s *Service) creditBadge(ctx context.Context, tx *gorm.DB, userID string, badgePoints int64) error {
	tx = tx.Scopes(option.LockingUpdate)

	badge, err := s.badges.WithTrx(tx).FindOne(ctx, &UserBadge{UserID: userID})
	if err != nil {
		return err
	}
	if badge == nil {
		return s.badges.WithTrx(tx).Create(ctx, &UserBadge{
			UserID:      userID,
			BadgePoints: badgePoints,
		})
	}
	return tx.Model(&UserBadge{}).Where("user_id = ?", userID).Updates(map[string]any{
		"badge_points": gorm.Expr("badge_points + ?", badgePoints),
		"updated_at":   time.Now(),
	}).Error
}

func (s *Service) recordFailure(ctx context.Context, re *RewardEvent, cause error) {
	maxRetries := s.cfg.Rewards.MaxRetries
	err := s.db.WithContext(ctx).Model(&RewardEvent{}).Where("id = ?", re.ID).Updates(map[string]any{
		"retry_count": gorm.Expr("retry_count + 1"),
		"last_error":  cause.Error(),
		"status": gorm.Expr("CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END",
			maxRetries, StatusFailed, StatusPending),
		// A terminally failed record releases its dedup key so the reward can
		// be submitted again.
		"dedup_key": gorm.Expr("CASE WHEN retry_count + 1 >= ? THEN NULL ELSE dedup_key END", maxRetries),
	}).Error
	if err != nil {
		zap.L().Error("failed to record reward failure",
			zap.String("reward_event_id", re.ID), zap.Error(err))
		return
	}

	zap.L().Warn("reward event crediting failed",
		zap.String("reward_event_id", re.ID),
		zap.String("user_id", re.UserID),
		zap.Error(cause),
	)
}

// ScheduleSettlement queues asynchronous settlement of an event's rewards on
// the settlement queue.
func (s *Service) ScheduleSettlement(eventID string) error {
	if s.queue == nil {
		return errutil.Internal("task queue not configured", nil)
	}

	t, err := NewSettleEventTask(eventID)
	if err != nil {
		return err
	}
	info, err := s.queue.Enqueue(t)
	if err != nil {
		return err
	}

	zap.L().Info("settlement task enqueued",
		zap.String("event_id", eventID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// SettleEventRewards converts an event's result details (plus participation
// and voter conditions) into reward events, then runs one processing pass.
func (s *Service) SettleEventRewards(ctx context.Context, eventID string) (*Summary, error) {
	if _, err := s.results.Get(ctx, eventID); err != nil {
		return nil, err
	}

	details, err := s.results.Details(ctx, eventID)
	if err != nil {
		return nil, err
	}

	for _, d := range details {
		if d.RewardProcessed {
			continue
		}
		if d.PointsEarned > 0 || d.BadgePointsEarned > 0 {
			submissionID := d.SubmissionID
			if _, err := s.Submit(ctx, SubmitParams{
				UserID:       d.UserID,
				EventID:      eventID,
				SubmissionID: &submissionID,
				RewardType:   TypeEventResult,
				Points:       d.PointsEarned,
				BadgePoints:  d.BadgePointsEarned,
			}); err != nil && !isSkippable(err) {
				return nil, err
			}
		}
		if d.CouponCode != "" {
			if err := s.issueCoupon(ctx, eventID, d); err != nil {
				zap.L().Error("failed to issue coupon",
					zap.String("event_id", eventID),
					zap.String("user_id", d.UserID),
					zap.Error(err),
				)
			}
		}
	}

	if err := s.submitConditionRewards(ctx, eventID); err != nil {
		return nil, err
	}

	// Scoped to this event so the summary is not inflated by unrelated
	// pending rewards.
	return s.processPendingScope(ctx, eventID)
}

func (s *Service) submitConditionRewards(ctx context.Context, eventID string) error {
	conds, err := s.events.Conditions(ctx, eventID)
	if err != nil {
		return err
	}

	for _, cond := range conds {
		grant := outcome.ParseRewardSpec(cond.RewardSpec)
		if grant.Points <= 0 && grant.BadgePoints <= 0 {
			continue
		}

		switch cond.ConditionValue {
		case event.ConditionParticipation:
			subs, err := s.events.Submissions(ctx, eventID)
			if err != nil {
				return err
			}
			issued := 0
			for _, sub := range subs {
				if cond.MaxRecipients > 0 && issued >= cond.MaxRecipients {
					break
				}
				submissionID := sub.ID
				if _, err := s.Submit(ctx, SubmitParams{
					UserID:       sub.UserID,
					EventID:      eventID,
					SubmissionID: &submissionID,
					RewardType:   TypeParticipation,
					Points:       grant.Points,
					BadgePoints:  grant.BadgePoints,
				}); err != nil {
					if isSkippable(err) {
						continue
					}
					return err
				}
				issued++
			}

		case event.ConditionVoters:
			voters, err := s.events.Voters(ctx, eventID)
			if err != nil {
				return err
			}
			issued := 0
			for _, userID := range voters {
				if cond.MaxRecipients > 0 && issued >= cond.MaxRecipients {
					break
				}
				if _, err := s.Submit(ctx, SubmitParams{
					UserID:      userID,
					EventID:     eventID,
					RewardType:  TypeVoter,
					Points:      grant.Points,
					BadgePoints: grant.BadgePoints,
				}); err != nil {
					if isSkippable(err) {
						continue
					}
					return err
				}
				issued++
			}
		}
	}

	return nil
}

func (s *Service) issueCoupon(ctx context.Context, eventID string, d *result.EventResultDetail) error {
	existing, err := s.coupons.FindOne(ctx, &CouponIssue{
		EventID: eventID,
		UserID:  d.UserID,
		Code:    d.CouponCode,
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	var serial string
	if s.seq != nil {
		if serial, err = s.seq.NextCouponSerial(ctx, eventID); err != nil {
			zap.L().Warn("coupon serial generation failed, issuing without serial", zap.Error(err))
			serial = ""
		}
	}

	return s.coupons.Create(ctx, &CouponIssue{
		ID:          s.node.Generate().String(),
		UserID:      d.UserID,
		EventID:     eventID,
		Code:        d.CouponCode,
		Serial:      serial,
		Description: d.CouponDescription,
	})
}

// Reprocess re-triggers a single user's reward within an event, recomputing
// the grant from the stored result detail. The same dedup and cap guards
// apply; only a failed (or missing) prior record lets a new one in.
func (s *Service) Reprocess(ctx context.Context, eventID, userID string) (*RewardEvent, error) {
	detail, err := s.results.DetailForUser(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, errutil.NotFound("no reward found for user in event", nil)
	}

	submissionID := detail.SubmissionID
	re, err := s.Submit(ctx, SubmitParams{
		UserID:       userID,
		EventID:      eventID,
		SubmissionID: &submissionID,
		RewardType:   TypeEventResult,
		Points:       detail.PointsEarned,
		BadgePoints:  detail.BadgePointsEarned,
	})
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	s.processOne(ctx, re, summary)

	return s.rewards.FindOne(ctx, &RewardEvent{ID: re.ID})
}

// FailedEvents lists terminally failed reward events for operational review.
// They stay out of the sweep until explicitly reprocessed.
func (s *Service) FailedEvents(ctx context.Context) ([]*RewardEvent, error) {
	return s.rewards.Find(ctx, &RewardEvent{Status: StatusFailed},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
	)
}

func (s *Service) expiryDate() *time.Time {
	months := s.cfg.Rewards.ExpiryMonths
	if months <= 0 {
		return nil
	}
	t := time.Now().AddDate(0, months, 0)
	return &t
}

func isSkippable(err error) bool {
	var be errutil.BaseError
	if !errors.As(err, &be) {
		return false
	}
	return be.Status() == errutil.StatusConflict || be.Status() == errutil.StatusTooManyRequests
}

// dedupKey flattens the trigger identity into the value backing the unique
// index. Rewards with no submission (voter grants) key on the event instead.
func dedupKey(p SubmitParams) string {
	if p.SubmissionID != nil {
		return strings.Join([]string{p.UserID, *p.SubmissionID, string(p.RewardType)}, "|")
	}
	return strings.Join([]string{p.UserID, "event:" + p.EventID, string(p.RewardType)}, "|")
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
