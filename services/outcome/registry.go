package outcome

import (
	"rewardengine/pkg/errutil"
	"rewardengine/services/event"

	"go.uber.org/fx"
)

// Registry resolves the strategy for an event kind. It is built once at
// startup from the complete strategy set and not mutated afterwards.
type Registry struct {
	strategies map[event.Kind]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[event.Kind]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Kind()] = s
	}
	return r
}

func (r *Registry) Resolve(kind event.Kind) (Strategy, error) {
	s, ok := r.strategies[kind]
	if !ok {
		return nil, errutil.BadRequest("unsupported event kind: "+string(kind), nil)
	}
	return s, nil
}

type registryParams struct {
	fx.In
	Tally event.TallySource
}

var Module = fx.Module("outcome",
	fx.Provide(func(p registryParams) *Registry {
		return NewRegistry(
			NewBattleStrategy(p.Tally),
			NewRankingStrategy(p.Tally),
		)
	}),
)
