package point

import (
	"time"
)

type TransactionType string

const (
	TypeEarn   TransactionType = "earn"
	TypeUse    TransactionType = "use"
	TypeExpire TransactionType = "expire"
)

// PointTransaction is the append-only history. Points is the signed delta
// (earn positive, use/expire negative), so the current balance is always the
// plain sum of a user's rows.
type PointTransaction struct {
	ID          string          `gorm:"column:id;primaryKey;type:char(26)"`
	UserID      string          `gorm:"column:user_id;index;not null"`
	Type        TransactionType `gorm:"column:type;type:varchar(20);not null"`
	Points      int64           `gorm:"column:points;not null"`
	BalanceAfter int64          `gorm:"column:balance_after;not null"`
	// Remaining tracks how much of an earn row is still unconsumed, for
	// FIFO debits and expiry. Zero for use/expire rows.
	Remaining   int64      `gorm:"column:remaining"`
	ReferenceID string     `gorm:"column:reference_id;index"`
	Description string     `gorm:"column:description;type:text"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	ExpireAt    *time.Time `gorm:"column:expire_at;index"`
}

// UserPoint caches the running balance for fast reads. It must stay equal to
// the fold of the user's transactions; both are written in one transaction.
type UserPoint struct {
	UserID        string    `gorm:"column:user_id;primaryKey;type:char(26)"`
	CurrentPoints int64     `gorm:"column:current_points;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
