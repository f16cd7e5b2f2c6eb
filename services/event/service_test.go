package event

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewardengine/pkg/errutil"
	"rewardengine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Event{}, &RewardCondition{}, &Submission{}, &Vote{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node}), db
}

func seedEvent(t *testing.T, db *gorm.DB, id string, kind Kind) {
	t.Helper()
	require.NoError(t, db.Create(&Event{
		ID:      id,
		OwnerID: "owner-1",
		Title:   "summer battle",
		Kind:    kind,
		Status:  StatusClosed,
	}).Error)
}

func TestGetEvent(t *testing.T) {
	svc, db := newTestService(t)
	seedEvent(t, db, "ev-1", KindBattle)

	ev, err := svc.Get(context.Background(), "ev-1")
	require.NoError(t, err)
	require.Equal(t, KindBattle, ev.Kind)
}

func TestGetEventNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestConditionsAndSubmissionsScopedToEvent(t *testing.T) {
	svc, db := newTestService(t)
	seedEvent(t, db, "ev-1", KindRanking)
	seedEvent(t, db, "ev-2", KindRanking)

	require.NoError(t, db.Create(&RewardCondition{ID: "c1", EventID: "ev-1", ConditionValue: "1", RewardSpec: "points:100"}).Error)
	require.NoError(t, db.Create(&RewardCondition{ID: "c2", EventID: "ev-2", ConditionValue: "1", RewardSpec: "points:900"}).Error)
	require.NoError(t, db.Create(&Submission{ID: "s1", EventID: "ev-1", UserID: "u1"}).Error)
	require.NoError(t, db.Create(&Submission{ID: "s2", EventID: "ev-2", UserID: "u2"}).Error)

	conds, err := svc.Conditions(context.Background(), "ev-1")
	require.NoError(t, err)
	require.Len(t, conds, 1)
	require.Equal(t, "c1", conds[0].ID)

	subs, err := svc.Submissions(context.Background(), "ev-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "s1", subs[0].ID)
}

func TestVotersDistinctAcrossSubmissions(t *testing.T) {
	svc, db := newTestService(t)
	seedEvent(t, db, "ev-1", KindRanking)

	require.NoError(t, db.Create(&Submission{ID: "s1", EventID: "ev-1", UserID: "u1"}).Error)
	require.NoError(t, db.Create(&Submission{ID: "s2", EventID: "ev-1", UserID: "u2"}).Error)
	require.NoError(t, db.Create(&Submission{ID: "s9", EventID: "other", UserID: "u9"}).Error)

	// voter-a votes on both submissions; only counted once.
	votes := []*Vote{
		{ID: "v1", SubmissionID: "s1", UserID: "voter-a"},
		{ID: "v2", SubmissionID: "s2", UserID: "voter-a"},
		{ID: "v3", SubmissionID: "s2", UserID: "voter-b"},
		{ID: "v4", SubmissionID: "s9", UserID: "voter-c"},
	}
	for _, v := range votes {
		require.NoError(t, db.Create(v).Error)
	}

	voters, err := svc.Voters(context.Background(), "ev-1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"voter-a", "voter-b"}, voters)
}

func TestTallyCountsVotes(t *testing.T) {
	_, db := newTestService(t)
	tally := NewTallySource(db)
	seedEvent(t, db, "ev-1", KindBattle)

	require.NoError(t, db.Create(&Submission{ID: "s1", EventID: "ev-1", UserID: "u1"}).Error)
	require.NoError(t, db.Create(&Submission{ID: "s2", EventID: "ev-1", UserID: "u2"}).Error)
	for i, sid := range []string{"s1", "s1", "s1", "s2"} {
		require.NoError(t, db.Create(&Vote{ID: string(rune('a' + i)), SubmissionID: sid, UserID: "voter"}).Error)
	}

	n, err := tally.CountVotesForSubmission(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	total, err := tally.CountVotesForEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.Equal(t, int64(4), total)
}
