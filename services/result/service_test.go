package result

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewardengine/pkg/errutil"
	"rewardengine/services/event"
	"rewardengine/services/outcome"
	"rewardengine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t,
		&event.Event{}, &event.RewardCondition{}, &event.Submission{}, &event.Vote{},
		&EventResult{}, &EventResultDetail{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	events := event.NewService(event.ServiceParams{DB: db, Node: node})
	tally := event.NewTallySource(db)
	registry := outcome.NewRegistry(
		outcome.NewBattleStrategy(tally),
		outcome.NewRankingStrategy(tally),
	)

	return NewService(ServiceParams{DB: db, Node: node, Events: events, Registry: registry}), db
}

// seedRankingEvent builds a three-entry ranking event where s1 > s2 > s3 by
// vote count, with podium conditions configured.
func seedRankingEvent(t *testing.T, db *gorm.DB, eventID string) {
	t.Helper()
	require.NoError(t, db.Create(&event.Event{
		ID: eventID, OwnerID: "owner-1", Title: "art contest",
		Kind: event.KindRanking, Status: event.StatusClosed,
	}).Error)

	conds := []*event.RewardCondition{
		{ID: eventID + "-c1", EventID: eventID, ConditionValue: "1", RewardSpec: "points:1000, badgePoints:50, coupon:GOLD"},
		{ID: eventID + "-c2", EventID: eventID, ConditionValue: "2", RewardSpec: "points:500"},
		{ID: eventID + "-c3", EventID: eventID, ConditionValue: "3", RewardSpec: "points:250"},
	}
	for _, c := range conds {
		require.NoError(t, db.Create(c).Error)
	}

	now := time.Now()
	subs := []*event.Submission{
		{ID: eventID + "-s1", EventID: eventID, UserID: "u1", Title: "one", CreatedAt: now},
		{ID: eventID + "-s2", EventID: eventID, UserID: "u2", Title: "two", CreatedAt: now},
		{ID: eventID + "-s3", EventID: eventID, UserID: "u3", Title: "three", CreatedAt: now},
	}
	for _, sub := range subs {
		require.NoError(t, db.Create(sub).Error)
	}

	votes := map[string]int{eventID + "-s1": 3, eventID + "-s2": 2, eventID + "-s3": 1}
	i := 0
	for sid, n := range votes {
		for j := 0; j < n; j++ {
			require.NoError(t, db.Create(&event.Vote{
				ID: sid + "-v" + string(rune('a'+j)), SubmissionID: sid, UserID: "voter-" + string(rune('a'+i)) + string(rune('a'+j)),
			}).Error)
		}
		i++
	}
}

func TestCreateResult(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seedRankingEvent(t, db, "ev-1")

	res, err := svc.Create(ctx, "ev-1", false)
	require.NoError(t, err)
	require.Equal(t, event.KindRanking, res.ResultType)
	require.Equal(t, 3, res.TotalParticipants)
	require.Equal(t, int64(6), res.TotalVotes)

	details, err := svc.Details(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, details, 3)

	byRank := map[int]*EventResultDetail{}
	for _, d := range details {
		byRank[d.Rank] = d
	}
	require.Equal(t, "u1", byRank[1].UserID)
	require.Equal(t, int64(1000), byRank[1].PointsEarned)
	require.Equal(t, int64(50), byRank[1].BadgePointsEarned)
	require.Equal(t, "GOLD", byRank[1].CouponCode)
	require.False(t, byRank[1].RewardProcessed)
	require.Equal(t, "u2", byRank[2].UserID)
	require.Equal(t, int64(500), byRank[2].PointsEarned)
}

func TestCreateConflictsWithoutForce(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seedRankingEvent(t, db, "ev-1")

	_, err := svc.Create(ctx, "ev-1", false)
	require.NoError(t, err)

	_, err = svc.Create(ctx, "ev-1", false)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusConflict, be.Status())
}

func TestCreateForceReplacesDetails(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seedRankingEvent(t, db, "ev-1")

	first, err := svc.Create(ctx, "ev-1", false)
	require.NoError(t, err)

	// Flip the standings: s3 overtakes everyone.
	for j := 0; j < 10; j++ {
		require.NoError(t, db.Create(&event.Vote{
			ID: "extra-" + string(rune('a'+j)), SubmissionID: "ev-1-s3", UserID: "late-" + string(rune('a'+j)),
		}).Error)
	}

	second, err := svc.Create(ctx, "ev-1", true)
	require.NoError(t, err)

	// Identity, announcement and the original snapshot survive the overwrite.
	require.Equal(t, first.ID, second.ID)
	require.WithinDuration(t, first.AnnouncedAt, second.AnnouncedAt, time.Second)
	require.Equal(t, int64(16), second.TotalVotes)

	stored, err := svc.Get(ctx, "ev-1")
	require.NoError(t, err)
	var snapshot []outcome.Entry
	require.NoError(t, json.Unmarshal(stored.Snapshot, &snapshot))
	require.Len(t, snapshot, 3)
	require.Equal(t, "u1", snapshot[0].UserID)

	details, err := svc.Details(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, details, 3)
	for _, d := range details {
		if d.Rank == 1 {
			require.Equal(t, "u3", d.UserID)
		}
	}
}

func TestRecalculateWithoutExistingResult(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seedRankingEvent(t, db, "ev-1")

	res, err := svc.Recalculate(ctx, "ev-1")
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
}

func TestGetResultNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestCreateUnknownEvent(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "missing", false)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestCreateUnsupportedKind(t *testing.T) {
	svc, db := newTestService(t)
	require.NoError(t, db.Create(&event.Event{
		ID: "ev-x", OwnerID: "owner-1", Kind: event.Kind("lottery"), Status: event.StatusClosed,
	}).Error)

	_, err := svc.Create(context.Background(), "ev-x", false)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusBadRequest, be.Status())
}

func TestDeleteResult(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seedRankingEvent(t, db, "ev-1")

	_, err := svc.Create(ctx, "ev-1", false)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "ev-1"))

	_, err = svc.Get(ctx, "ev-1")
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&EventResultDetail{}).Where("event_id = ?", "ev-1").Count(&count).Error)
	require.Zero(t, count)

	// The event itself survives a result deletion.
	var ev event.Event
	require.NoError(t, db.First(&ev, "id = ?", "ev-1").Error)
}

func TestDeleteResultNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Delete(context.Background(), "missing")
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestDeleteEventCascades(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seedRankingEvent(t, db, "ev-1")

	_, err := svc.Create(ctx, "ev-1", false)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEvent(ctx, "ev-1"))

	var count int64
	require.NoError(t, db.Model(&event.Event{}).Where("id = ?", "ev-1").Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&event.RewardCondition{}).Where("event_id = ?", "ev-1").Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&EventResult{}).Where("event_id = ?", "ev-1").Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&EventResultDetail{}).Where("event_id = ?", "ev-1").Count(&count).Error)
	require.Zero(t, count)
}

func TestDetailForUser(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seedRankingEvent(t, db, "ev-1")

	_, err := svc.Create(ctx, "ev-1", false)
	require.NoError(t, err)

	detail, err := svc.DetailForUser(ctx, "ev-1", "u2")
	require.NoError(t, err)
	require.NotNil(t, detail)
	require.Equal(t, 2, detail.Rank)

	detail, err = svc.DetailForUser(ctx, "ev-1", "nobody")
	require.NoError(t, err)
	require.Nil(t, detail)
}
