package outcome

import (
	"context"
	"sort"

	"rewardengine/services/event"
)

const rankingPodiumSize = 3

// RankingStrategy orders submissions by vote count and rewards the top three.
// The sort is stable and applies no secondary tie-break: tied submissions keep
// their original relative order, unlike the battle tie-break.
type RankingStrategy struct {
	tally event.TallySource
}

func NewRankingStrategy(tally event.TallySource) *RankingStrategy {
	return &RankingStrategy{tally: tally}
}

func (s *RankingStrategy) Kind() event.Kind {
	return event.KindRanking
}

func (s *RankingStrategy) Compute(ctx context.Context, ev *event.Event, conds []*event.RewardCondition, subs []*event.Submission) (*Outcome, error) {
	// An event nobody entered has an empty result, not an error.
	if len(subs) == 0 {
		return &Outcome{}, nil
	}

	counts, err := tallyAll(ctx, s.tally, subs)
	if err != nil {
		return nil, err
	}

	ordered := make([]*event.Submission, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return counts[ordered[i].ID] > counts[ordered[j].ID]
	})

	podium := rankingPodiumSize
	if len(ordered) < podium {
		podium = len(ordered)
	}

	out := &Outcome{TotalParticipants: len(subs)}
	for i := 0; i < podium; i++ {
		rank := i + 1
		cond, err := conditionForRank(conds, rank)
		if err != nil {
			return nil, err
		}

		sub := ordered[i]
		out.Entries = append(out.Entries, Entry{
			Rank:            rank,
			UserID:          sub.UserID,
			SubmissionID:    sub.ID,
			SubmissionTitle: sub.Title,
			VoteCount:       counts[sub.ID],
			Grant:           ParseRewardSpec(cond.RewardSpec),
		})
		out.TotalVotes += counts[sub.ID]
	}

	return out, nil
}
