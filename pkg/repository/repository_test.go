package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rewardengine/pkg/db/option"
)

type widget struct {
	ID    string `gorm:"column:id;primaryKey"`
	Name  string `gorm:"column:name"`
	Tier  int    `gorm:"column:tier"`
	Score int    `gorm:"column:score"`

	CreatedAt int64 `gorm:"column:created_at;autoCreateTime:nano"`
}

func newStore(t *testing.T) (Repository[widget], *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return ProvideStore[widget](db), db
}

func TestFindOneMissingReturnsNil(t *testing.T) {
	store, _ := newStore(t)

	got, err := store.FindOne(context.Background(), &widget{ID: "missing"})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCreateAndFindByStructQuery(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &widget{ID: "w1", Name: "alpha", Tier: 1}))
	require.NoError(t, store.Create(ctx, &widget{ID: "w2", Name: "beta", Tier: 2}))
	require.NoError(t, store.Create(ctx, &widget{ID: "w3", Name: "gamma", Tier: 2}))

	got, err := store.Find(ctx, &widget{Tier: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)

	count, err := store.Count(ctx, &widget{Tier: 2})
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestFindWithOperatorLimitAndSort(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for i, score := range []int{10, 30, 20} {
		require.NoError(t, store.Create(ctx, &widget{
			ID: string(rune('a' + i)), Score: score,
		}))
	}

	got, err := store.Find(ctx, &widget{},
		option.ApplyOperator(option.Condition{Field: "score", Operator: option.GT, Value: 10}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "score",
			OrderBy: "desc",
			Allow:   map[string]bool{"score": true},
		}),
		option.WithLimit(1),
	)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 30, got[0].Score)
}

func TestSortWhitelistFallsBackToCreatedAt(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &widget{ID: "w1"}))
	require.NoError(t, store.Create(ctx, &widget{ID: "w2"}))

	// A column outside the whitelist must not reach the SQL string.
	got, err := store.Find(ctx, &widget{},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "name; DROP TABLE widgets",
			OrderBy: "desc",
			Allow:   map[string]bool{"score": true},
		}),
	)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "w2", got[0].ID)
}

func TestUpdateByID(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &widget{ID: "w1", Name: "before"}))
	require.NoError(t, store.Update(ctx, "w1", map[string]any{"name": "after"}))

	got, err := store.FindOne(ctx, &widget{ID: "w1"})
	require.NoError(t, err)
	require.Equal(t, "after", got.Name)
}

func TestWithTrxRollsBackTogether(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := store.WithTrx(tx).Create(ctx, &widget{ID: "w1"}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	got, err := store.FindOne(ctx, &widget{ID: "w1"})
	require.NoError(t, err)
	require.Nil(t, got)
}
