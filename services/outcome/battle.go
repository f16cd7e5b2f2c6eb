package outcome

import (
	"context"
	"math/rand"
	"time"

	"rewardengine/pkg/errutil"
	"rewardengine/services/event"
)

// BattleStrategy pairs submissions off at random and picks one winner per
// match. Every winner holds rank 1; a battle event may have several
// simultaneous winners.
type BattleStrategy struct {
	tally event.TallySource

	// shuffle permutes n elements via swap. Tests replace it with a no-op
	// to make pairings deterministic.
	shuffle func(n int, swap func(i, j int))
}

func NewBattleStrategy(tally event.TallySource) *BattleStrategy {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &BattleStrategy{
		tally:   tally,
		shuffle: rng.Shuffle,
	}
}

func (s *BattleStrategy) Kind() event.Kind {
	return event.KindBattle
}

func (s *BattleStrategy) Compute(ctx context.Context, ev *event.Event, conds []*event.RewardCondition, subs []*event.Submission) (*Outcome, error) {
	if len(subs) < 2 {
		return nil, errutil.UnprocessableEntity("insufficient participants for battle", nil)
	}

	// Battles only grant a single winner tier: rank 1 must be configured.
	cond, err := conditionForRank(conds, 1)
	if err != nil {
		return nil, err
	}
	grant := ParseRewardSpec(cond.RewardSpec)

	counts, err := tallyAll(ctx, s.tally, subs)
	if err != nil {
		return nil, err
	}

	shuffled := make([]*event.Submission, len(subs))
	copy(shuffled, subs)
	s.shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	out := &Outcome{TotalParticipants: len(subs)}
	for i := 0; i < len(shuffled); i += 2 {
		var winner *event.Submission
		if i+1 >= len(shuffled) {
			// Odd submission left over: no opponent, auto-win.
			winner = shuffled[i]
		} else {
			winner = determineWinner(shuffled[i], shuffled[i+1], counts)
		}

		out.Entries = append(out.Entries, Entry{
			Rank:            1,
			UserID:          winner.UserID,
			SubmissionID:    winner.ID,
			SubmissionTitle: winner.Title,
			VoteCount:       counts[winner.ID],
			Grant:           grant,
		})
		out.TotalVotes += counts[winner.ID]
	}

	return out, nil
}

// determineWinner picks the submission with the strictly higher vote count.
// An exact tie goes to the earlier submission, never to chance.
func determineWinner(a, b *event.Submission, counts map[string]int64) *event.Submission {
	switch {
	case counts[a.ID] > counts[b.ID]:
		return a
	case counts[b.ID] > counts[a.ID]:
		return b
	case a.CreatedAt.Before(b.CreatedAt):
		return a
	default:
		return b
	}
}
