package result

import (
	"time"

	"gorm.io/datatypes"

	"rewardengine/services/event"
)

// EventResult is the persisted outcome of one event. At most one row exists
// per event (unique index); recalculation replaces the detail collection, it
// never revises detail rows in place.
type EventResult struct {
	ID                string     `gorm:"column:id;primaryKey;type:char(26)"`
	EventID           string     `gorm:"column:event_id;uniqueIndex;not null"`
	ResultType        event.Kind `gorm:"column:result_type;type:varchar(20);not null"`
	AnnouncedAt       time.Time  `gorm:"column:announced_at"`
	TotalParticipants int        `gorm:"column:total_participants"`
	TotalVotes        int64      `gorm:"column:total_votes"`
	// Snapshot holds the entries as first announced. Recalculation rewrites
	// the detail rows but never this column.
	Snapshot  datatypes.JSON `gorm:"column:snapshot"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

type EventResultDetail struct {
	ID                string     `gorm:"column:id;primaryKey;type:char(26)"`
	ResultID          string     `gorm:"column:result_id;index;not null"`
	EventID           string     `gorm:"column:event_id;index;not null"`
	UserID            string     `gorm:"column:user_id;index;not null"`
	SubmissionID      string     `gorm:"column:submission_id;index"`
	SubmissionTitle   string     `gorm:"column:submission_title;type:varchar(200)"`
	Rank              int        `gorm:"column:rank"`
	VoteCount         int64      `gorm:"column:vote_count"`
	PointsEarned      int64      `gorm:"column:points_earned"`
	BadgePointsEarned int64      `gorm:"column:badge_points_earned"`
	CouponCode        string     `gorm:"column:coupon_code;type:varchar(60)"`
	CouponDescription string     `gorm:"column:coupon_description;type:varchar(200)"`
	RewardProcessed   bool       `gorm:"column:reward_processed;default:false"`
	RewardProcessedAt *time.Time `gorm:"column:reward_processed_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
}
