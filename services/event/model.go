package event

import (
	"time"
)

// Kind selects the outcome algorithm for an event.
type Kind string

const (
	KindBattle  Kind = "battle"
	KindRanking Kind = "ranking"
)

func (k Kind) Valid() bool {
	return k == KindBattle || k == KindRanking
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusAnnounced Status = "announced"
)

// Reserved condition values besides numeric ranks ("1", "2", "3").
const (
	ConditionParticipation = "participation"
	ConditionVoters        = "voters"
)

type Event struct {
	ID              string    `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
	OwnerID         string    `gorm:"column:owner_id;index;not null"`
	Title           string    `gorm:"column:title;type:varchar(200)"`
	Kind            Kind      `gorm:"column:kind;type:varchar(20);not null"`
	Status          Status    `gorm:"column:status;type:varchar(20);default:'draft'"`
	MaxParticipants int       `gorm:"column:max_participants"`
}

// RewardCondition declares what a placement earns. ConditionValue is a rank
// ("1".."3") or a reserved token (participation, voters). RewardSpec holds the
// raw reward expression, e.g. "points:1000, badgePoints:50, coupon:CODE123".
type RewardCondition struct {
	ID             string    `gorm:"column:id;primaryKey;type:char(26)"`
	EventID        string    `gorm:"column:event_id;index;not null"`
	ConditionValue string    `gorm:"column:condition_value;type:varchar(30);not null"`
	RewardSpec     string    `gorm:"column:reward_spec;type:varchar(200)"`
	MaxRecipients  int       `gorm:"column:max_recipients"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Submission is a user's entry in an event. CreatedAt doubles as the battle
// tie-break key.
type Submission struct {
	ID        string    `gorm:"column:id;primaryKey;type:char(26)"`
	EventID   string    `gorm:"column:event_id;index"`
	UserID    string    `gorm:"column:user_id;index;not null"`
	Title     string    `gorm:"column:title;type:varchar(200)"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

type Vote struct {
	ID           string    `gorm:"column:id;primaryKey;type:char(26)"`
	SubmissionID string    `gorm:"column:submission_id;index;not null"`
	UserID       string    `gorm:"column:user_id;index;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}
