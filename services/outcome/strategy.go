package outcome

import (
	"context"
	"strconv"

	"rewardengine/pkg/errutil"
	"rewardengine/services/event"
)

// Entry is one winning submission inside an Outcome. Entries are produced
// fresh on every computation and never mutated in place.
type Entry struct {
	Rank            int         `json:"rank"`
	UserID          string      `json:"user_id"`
	SubmissionID    string      `json:"submission_id"`
	SubmissionTitle string      `json:"submission_title"`
	VoteCount       int64       `json:"vote_count"`
	Grant           RewardGrant `json:"grant"`
}

// Outcome is the transient, recomputable result of applying a Strategy to an
// event's submissions.
type Outcome struct {
	Entries           []Entry `json:"entries"`
	TotalParticipants int     `json:"total_participants"`
	TotalVotes        int64   `json:"total_votes"`
}

type Strategy interface {
	Kind() event.Kind
	Compute(ctx context.Context, ev *event.Event, conds []*event.RewardCondition, subs []*event.Submission) (*Outcome, error)
}

// conditionForRank resolves the reward condition for a numeric rank. A
// populated rank without a matching condition is misconfiguration and a hard
// failure: outcome computation must not silently grant nothing to a winner.
func conditionForRank(conds []*event.RewardCondition, rank int) (*event.RewardCondition, error) {
	want := strconv.Itoa(rank)
	for _, c := range conds {
		if c.ConditionValue == want {
			return c, nil
		}
	}
	return nil, errutil.UnprocessableEntity("missing reward condition for rank "+want, nil)
}

func tallyAll(ctx context.Context, tally event.TallySource, subs []*event.Submission) (map[string]int64, error) {
	counts := make(map[string]int64, len(subs))
	for _, sub := range subs {
		n, err := tally.CountVotesForSubmission(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		counts[sub.ID] = n
	}
	return counts, nil
}
