package point

import (
	"context"
	"time"

	"rewardengine/pkg/db/option"
	"rewardengine/pkg/db/pagination"
	"rewardengine/pkg/errutil"
	"rewardengine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	transactions repository.Repository[PointTransaction]
	balances     repository.Repository[UserPoint]
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

		transactions: repository.ProvideStore[PointTransaction](p.DB),
		balances:     repository.ProvideStore[UserPoint](p.DB),
	}
}

type CreditParams struct {
	UserID      string
	Points      int64
	ReferenceID string
	Description string
	ExpireAt    *time.Time
}

// Credit appends an earn transaction and bumps the cached balance in one
// transaction; both succeed or neither does.
func (s *Service) Credit(ctx context.Context, p CreditParams) (*PointTransaction, error) {
	if p.Points <= 0 {
		return nil, errutil.BadRequest("points must be > 0 for credit", nil)
	}

	entry := &PointTransaction{
		ID:          s.node.Generate().String(),
		UserID:      p.UserID,
		Type:        TypeEarn,
		Points:      p.Points,
		Remaining:   p.Points,
		ReferenceID: p.ReferenceID,
		Description: p.Description,
		ExpireAt:    p.ExpireAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)

		balance, err := s.balances.WithTrx(tx).FindOne(ctx, &UserPoint{UserID: p.UserID})
		if err != nil {
			return err
		}

		var previous int64
		if balance != nil {
			previous = balance.CurrentPoints
		}
		entry.BalanceAfter = previous + p.Points

		if err := s.transactions.WithTrx(tx).Create(ctx, entry); err != nil {
			return err
		}

		if balance == nil {
			return s.balances.WithTrx(tx).Create(ctx, &UserPoint{
				UserID:        p.UserID,
				CurrentPoints: entry.BalanceAfter,
			})
		}
		return tx.Model(&UserPoint{}).Where("user_id = ?", p.UserID).Updates(map[string]any{
			"current_points": entry.BalanceAfter,
			"updated_at":     time.Now(),
		}).Error
	})
	if err != nil {
		zap.L().Error("failed to credit points",
			zap.String("user_id", p.UserID),
			zap.Int64("points", p.Points),
			zap.Error(err),
		)
		return nil, err
	}

	return entry, nil
}

type DebitParams struct {
	UserID      string
	Points      int64
	ReferenceID string
	Description string
}

// Debit consumes earned points FIFO across unspent earn rows.
func (s *Service) Debit(ctx context.Context, p DebitParams) (*PointTransaction, error) {
	if p.Points <= 0 {
		return nil, errutil.BadRequest("points must be > 0 for debit", nil)
	}

	entry := &PointTransaction{
		ID:          s.node.Generate().String(),
		UserID:      p.UserID,
		Type:        TypeUse,
		Points:      -p.Points,
		ReferenceID: p.ReferenceID,
		Description: p.Description,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)

		balance, err := s.balances.WithTrx(tx).FindOne(ctx, &UserPoint{UserID: p.UserID})
		if err != nil {
			return err
		}
		if balance == nil || balance.CurrentPoints < p.Points {
			return errutil.UnprocessableEntity("insufficient points", nil)
		}

		earned, err := s.transactions.WithTrx(tx).Find(ctx,
			&PointTransaction{UserID: p.UserID, Type: TypeEarn},
			option.ApplyOperator(option.Condition{Field: "remaining", Operator: option.GT, Value: 0}),
			option.WithSortBy(option.QuerySortBy{
				SortBy:  "created_at",
				OrderBy: "asc",
				Allow:   map[string]bool{"created_at": true},
			}),
		)
		if err != nil {
			return err
		}

		remaining := p.Points
		for _, e := range earned {
			if remaining == 0 {
				break
			}
			take := e.Remaining
			if take > remaining {
				take = remaining
			}
			if err := tx.Model(&PointTransaction{}).Where("id = ?", e.ID).
				Update("remaining", gorm.Expr("remaining - ?", take)).Error; err != nil {
				return err
			}
			remaining -= take
		}
		if remaining > 0 {
			return errutil.UnprocessableEntity("insufficient points", nil)
		}

		entry.BalanceAfter = balance.CurrentPoints - p.Points
		if err := s.transactions.WithTrx(tx).Create(ctx, entry); err != nil {
			return err
		}

		return tx.Model(&UserPoint{}).Where("user_id = ?", p.UserID).Updates(map[string]any{
			"current_points": entry.BalanceAfter,
			"updated_at":     time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// ExpireDue turns overdue earn remainders into expire transactions. Returns
// how many users had points reclaimed.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	var due []*PointTransaction
	if err := s.db.WithContext(ctx).
		Where("type = ? AND remaining > 0 AND expire_at IS NOT NULL AND expire_at <= ?", TypeEarn, now).
		Order("user_id, created_at").
		Find(&due).Error; err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	perUser := make(map[string]int64)
	for _, e := range due {
		perUser[e.UserID] += e.Remaining
	}

	expired := 0
	for userID, total := range perUser {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			tx = tx.Scopes(option.LockingUpdate)

			balance, err := s.balances.WithTrx(tx).FindOne(ctx, &UserPoint{UserID: userID})
			if err != nil {
				return err
			}
			var previous int64
			if balance != nil {
				previous = balance.CurrentPoints
			}

			if err := tx.Model(&PointTransaction{}).
				Where("user_id = ? AND type = ? AND remaining > 0 AND expire_at IS NOT NULL AND expire_at <= ?",
					userID, TypeEarn, now).
				Update("remaining", 0).Error; err != nil {
				return err
			}

			entry := &PointTransaction{
				ID:           s.node.Generate().String(),
				UserID:       userID,
				Type:         TypeExpire,
				Points:       -total,
				BalanceAfter: previous - total,
				Description:  "points expired",
			}
			if err := s.transactions.WithTrx(tx).Create(ctx, entry); err != nil {
				return err
			}

			return tx.Model(&UserPoint{}).Where("user_id = ?", userID).Updates(map[string]any{
				"current_points": entry.BalanceAfter,
				"updated_at":     time.Now(),
			}).Error
		})
		if err != nil {
			zap.L().Error("failed to expire points", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		expired++
	}

	zap.L().Info("point expiry pass finished", zap.Int("users_expired", expired))
	return expired, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.balances.FindOne(ctx, &UserPoint{UserID: userID})
	if err != nil {
		return 0, err
	}
	if balance == nil {
		return 0, nil
	}
	return balance.CurrentPoints, nil
}

// History returns one page of the user's transactions, newest first, with a
// cursor for the next page.
func (s *Service) History(ctx context.Context, userID string, p pagination.Pagination) ([]*PointTransaction, *pagination.PageInfo, error) {
	limit := p.Bound()

	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if p.Cursor != "" {
		cursor, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []*PointTransaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	rows, info := pagination.BuildPageInfo(rows, limit, func(tx *PointTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: tx.CreatedAt, ID: tx.ID}
	})
	return rows, info, nil
}
