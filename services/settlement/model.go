package settlement

import (
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// ActiveStatuses are the states that count for the dedup guard: while a
// record is in one of these, the same trigger must not enter the ledger again.
// A failed record does not block resubmission.
var ActiveStatuses = []Status{StatusPending, StatusProcessing, StatusProcessed}

type RewardType string

const (
	TypeEventResult   RewardType = "event_result"
	TypeParticipation RewardType = "participation"
	TypeVoter         RewardType = "voter"
)

// RewardEvent is one ledger record: this user should receive this reward
// because of this trigger. It advances pending -> processing -> processed,
// falling back to pending on failure until RetryCount exhausts MaxRetries.
type RewardEvent struct {
	ID           string     `gorm:"column:id;primaryKey;type:char(26)"`
	UserID       string     `gorm:"column:user_id;index;not null"`
	EventID      string     `gorm:"column:event_id;index"`
	SubmissionID *string    `gorm:"column:submission_id;index"`
	RewardType   RewardType `gorm:"column:reward_type;type:varchar(30);not null"`
	Points       int64      `gorm:"column:points"`
	BadgePoints  int64      `gorm:"column:badge_points"`
	Status       Status     `gorm:"column:status;type:varchar(20);default:'pending';index"`
	// DedupKey backs the duplicate-trigger guard with a unique index. It is
	// set while the record is active and cleared when it parks as failed, so
	// the key frees up for resubmission. NULLs never collide.
	DedupKey     *string    `gorm:"column:dedup_key;uniqueIndex"`
	RetryCount   int        `gorm:"column:retry_count;default:0"`
	LastError    string     `gorm:"column:last_error;type:text"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime;index"`
	// UpdatedAt doubles as the claim timestamp: a record stuck in processing
	// past the claim lease is reclaimed by the next sweep.
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	ProcessedAt  *time.Time `gorm:"column:processed_at"`
}

// UserBadge is the per-user badge score, bumped when a reward event carrying
// badge points settles.
type UserBadge struct {
	UserID      string    `gorm:"column:user_id;primaryKey;type:char(26)"`
	BadgePoints int64     `gorm:"column:badge_points;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CouponIssue records a coupon handed out by settlement.
type CouponIssue struct {
	ID          string    `gorm:"column:id;primaryKey;type:char(26)"`
	UserID      string    `gorm:"column:user_id;index;not null"`
	EventID     string    `gorm:"column:event_id;index;not null"`
	Code        string    `gorm:"column:code;type:varchar(60);not null"`
	Serial      string    `gorm:"column:serial;type:varchar(40)"`
	Description string    `gorm:"column:description;type:varchar(200)"`
	IssuedAt    time.Time `gorm:"column:issued_at;autoCreateTime"`
}

// Summary reports one settlement pass.
type Summary struct {
	ProcessedCount     int   `json:"processed_count"`
	FailedCount        int   `json:"failed_count"`
	TotalPointsGranted int64 `json:"total_points_granted"`
}
