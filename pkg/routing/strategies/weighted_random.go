package strategies

import (
	"math/rand/v2"
	"slices"
	"sync"

	"mercator-hq/prism/pkg/registry"
)

// WeightedRandom draws the chain by successive sampling without
// replacement, each remaining provider chosen with probability proportional
// to its weight.
type WeightedRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeightedRandom creates the strategy. A nil rng uses a randomly seeded
// source.
func NewWeightedRandom(rng *rand.Rand) *WeightedRandom {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &WeightedRandom{rng: rng}
}

// Name implements routing.Strategy.
func (s *WeightedRandom) Name() string { return NameWeightedRandom }

// Order implements routing.Strategy.
func (s *WeightedRandom) Order(candidates []registry.Snapshot) []registry.Snapshot {
	pool := slices.Clone(candidates)
	out := make([]registry.Snapshot, 0, len(pool))

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(pool) > 0 {
		total := 0
		for _, c := range pool {
			total += c.Descriptor.EffectiveWeight()
		}

		pick := s.rng.IntN(total)
		i := 0
		for ; i < len(pool)-1; i++ {
			pick -= pool[i].Descriptor.EffectiveWeight()
			if pick < 0 {
				break
			}
		}
		out = append(out, pool[i])
		pool = slices.Delete(pool, i, i+1)
	}
	return out
}
