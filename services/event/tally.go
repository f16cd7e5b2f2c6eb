package event

import (
	"context"

	"gorm.io/gorm"
)

// TallySource exposes vote counts. Outcome strategies only ever read tallies,
// never the vote rows themselves.
type TallySource interface {
	CountVotesForSubmission(ctx context.Context, submissionID string) (int64, error)
	CountVotesForEvent(ctx context.Context, eventID string) (int64, error)
}

type gormTally struct {
	db *gorm.DB
}

func NewTallySource(db *gorm.DB) TallySource {
	return &gormTally{db: db}
}

func (t *gormTally) CountVotesForSubmission(ctx context.Context, submissionID string) (int64, error) {
	var count int64
	err := t.db.WithContext(ctx).
		Model(&Vote{}).
		Where("submission_id = ?", submissionID).
		Count(&count).Error
	return count, err
}

func (t *gormTally) CountVotesForEvent(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := t.db.WithContext(ctx).
		Model(&Vote{}).
		Joins("JOIN submissions ON submissions.id = votes.submission_id").
		Where("submissions.event_id = ?", eventID).
		Count(&count).Error
	return count, err
}
