package result

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"rewardengine/pkg/errutil"
	"rewardengine/pkg/repository"
	"rewardengine/services/event"
	"rewardengine/services/outcome"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service owns the EventResult lifecycle. It only records who should be
// rewarded what; crediting points is the settlement ledger's job.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	events   *event.Service
	registry *outcome.Registry

	results repository.Repository[EventResult]
	details repository.Repository[EventResultDetail]

	// locks serializes create/recalculate per event id. A single-process
	// mutex plus the unique index on event_id is enough; detail replacement
	// is one transaction either way.
	locks sync.Map
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Events   *event.Service
	Registry *outcome.Registry
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		events:   p.Events,
		registry: p.Registry,

		results: repository.ProvideStore[EventResult](p.DB),
		details: repository.ProvideStore[EventResultDetail](p.DB),
	}
}

func (s *Service) lockEvent(eventID string) func() {
	mu, _ := s.locks.LoadOrStore(eventID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Create computes and persists the result for an event. Without force it
// fails once a result exists; with force the previous detail set is replaced
// wholesale.
func (s *Service) Create(ctx context.Context, eventID string, force bool) (*EventResult, error) {
	unlock := s.lockEvent(eventID)
	defer unlock()

	existing, err := s.results.FindOne(ctx, &EventResult{EventID: eventID})
	if err != nil {
		return nil, err
	}
	if existing != nil && !force {
		return nil, errutil.Conflict("result already exists for event "+eventID, nil)
	}

	return s.computeAndStore(ctx, eventID, existing)
}

// Recalculate re-runs computation unconditionally, replacing existing details.
func (s *Service) Recalculate(ctx context.Context, eventID string) (*EventResult, error) {
	unlock := s.lockEvent(eventID)
	defer unlock()

	existing, err := s.results.FindOne(ctx, &EventResult{EventID: eventID})
	if err != nil {
		return nil, err
	}

	return s.computeAndStore(ctx, eventID, existing)
}

func (s *Service) computeAndStore(ctx context.Context, eventID string, existing *EventResult) (*EventResult, error) {
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	strategy, err := s.registry.Resolve(ev.Kind)
	if err != nil {
		return nil, err
	}

	conds, err := s.events.Conditions(ctx, eventID)
	if err != nil {
		return nil, err
	}

	subs, err := s.events.Submissions(ctx, eventID)
	if err != nil {
		return nil, err
	}

	out, err := strategy.Compute(ctx, ev, conds, subs)
	if err != nil {
		return nil, err
	}

	res := &EventResult{
		ID:                s.node.Generate().String(),
		EventID:           eventID,
		ResultType:        ev.Kind,
		AnnouncedAt:       time.Now(),
		TotalParticipants: out.TotalParticipants,
		TotalVotes:        out.TotalVotes,
	}
	if existing != nil {
		// Keep identity, announcement time and the original snapshot across
		// recalculations.
		res.ID = existing.ID
		res.AnnouncedAt = existing.AnnouncedAt
		res.CreatedAt = existing.CreatedAt
		res.Snapshot = existing.Snapshot
	} else if raw, err := json.Marshal(out.Entries); err == nil {
		res.Snapshot = datatypes.JSON(raw)
	}

	details := make([]*EventResultDetail, 0, len(out.Entries))
	for _, entry := range out.Entries {
		details = append(details, &EventResultDetail{
			ID:                s.node.Generate().String(),
			ResultID:          res.ID,
			EventID:           eventID,
			UserID:            entry.UserID,
			SubmissionID:      entry.SubmissionID,
			SubmissionTitle:   entry.SubmissionTitle,
			Rank:              entry.Rank,
			VoteCount:         entry.VoteCount,
			PointsEarned:      entry.Grant.Points,
			BadgePointsEarned: entry.Grant.BadgePoints,
			CouponCode:        entry.Grant.CouponCode,
			CouponDescription: entry.Grant.CouponDescription,
		})
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if existing != nil {
			if err := tx.Where("result_id = ?", res.ID).Delete(&EventResultDetail{}).Error; err != nil {
				return err
			}
			if err := tx.Model(&EventResult{}).Where("id = ?", res.ID).Updates(map[string]any{
				"result_type":        res.ResultType,
				"total_participants": res.TotalParticipants,
				"total_votes":        res.TotalVotes,
				"updated_at":         time.Now(),
			}).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Create(res).Error; err != nil {
				return err
			}
		}
		return s.details.WithTrx(tx).BatchCreate(ctx, details)
	}); err != nil {
		zap.L().Error("failed to store event result",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return nil, err
	}

	zap.L().Info("event result stored",
		zap.String("event_id", eventID),
		zap.String("result_type", string(res.ResultType)),
		zap.Int("winners", len(details)),
	)

	return res, nil
}

func (s *Service) Get(ctx context.Context, eventID string) (*EventResult, error) {
	res, err := s.results.FindOne(ctx, &EventResult{EventID: eventID})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errutil.NotFound("result not found for event "+eventID, nil)
	}
	return res, nil
}

func (s *Service) Details(ctx context.Context, eventID string) ([]*EventResultDetail, error) {
	return s.details.Find(ctx, &EventResultDetail{EventID: eventID})
}

// DetailForUser returns the user's winning entry in an event, or nil.
func (s *Service) DetailForUser(ctx context.Context, eventID, userID string) (*EventResultDetail, error) {
	return s.details.FindOne(ctx, &EventResultDetail{EventID: eventID, UserID: userID})
}

// Delete removes the result and its details so the event can be re-announced.
// Already-settled reward events are left alone: settlement is independent once
// started.
func (s *Service) Delete(ctx context.Context, eventID string) error {
	unlock := s.lockEvent(eventID)
	defer unlock()

	res, err := s.results.FindOne(ctx, &EventResult{EventID: eventID})
	if err != nil {
		return err
	}
	if res == nil {
		return errutil.NotFound("result not found for event "+eventID, nil)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("result_id = ?", res.ID).Delete(&EventResultDetail{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", res.ID).Delete(&EventResult{}).Error
	})
}

// DeleteEvent is the application-level cascade: the event, its reward
// conditions and its result (with details) go in one transaction.
func (s *Service) DeleteEvent(ctx context.Context, eventID string) error {
	unlock := s.lockEvent(eventID)
	defer unlock()

	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", eventID).Delete(&EventResultDetail{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&EventResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&event.RewardCondition{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", ev.ID).Delete(&event.Event{}).Error
	})
}
