package event

import (
	"context"

	"rewardengine/pkg/errutil"
	"rewardengine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	events      repository.Repository[Event]
	conditions  repository.Repository[RewardCondition]
	submissions repository.Repository[Submission]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		events:      repository.ProvideStore[Event](p.DB),
		conditions:  repository.ProvideStore[RewardCondition](p.DB),
		submissions: repository.ProvideStore[Submission](p.DB),
	}
}

func (s *Service) Get(ctx context.Context, eventID string) (*Event, error) {
	ev, err := s.events.FindOne(ctx, &Event{ID: eventID})
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, errutil.NotFound("event not found", nil)
	}
	return ev, nil
}

func (s *Service) Conditions(ctx context.Context, eventID string) ([]*RewardCondition, error) {
	return s.conditions.Find(ctx, &RewardCondition{EventID: eventID})
}

func (s *Service) Submissions(ctx context.Context, eventID string) ([]*Submission, error) {
	return s.submissions.Find(ctx, &Submission{EventID: eventID})
}

// Voters returns the distinct user ids that voted on any submission of the
// event, for voter-tier reward conditions.
func (s *Service) Voters(ctx context.Context, eventID string) ([]string, error) {
	var userIDs []string
	err := s.db.WithContext(ctx).
		Model(&Vote{}).
		Distinct("votes.user_id").
		Joins("JOIN submissions ON submissions.id = votes.submission_id").
		Where("submissions.event_id = ?", eventID).
		Pluck("votes.user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}
