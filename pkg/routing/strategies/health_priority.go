package strategies

import (
	"cmp"
	"slices"

	"mercator-hq/prism/pkg/registry"
	"mercator-hq/prism/pkg/routing"
)

// HealthPriority groups providers by health (healthy, unknown, degraded,
// unhealthy) and keeps the secondary strategy's order within each group.
type HealthPriority struct {
	secondary routing.Strategy
}

func NewHealthPriority(secondary routing.Strategy) *HealthPriority {
	return &HealthPriority{secondary: secondary}
}

func (s *HealthPriority) Name() string { return NameHealthPriority }

func (s *HealthPriority) Order(candidates []registry.Snapshot) []registry.Snapshot {
	out := slices.Clone(candidates)
	if s.secondary != nil {
		out = s.secondary.Order(out)
	}
	slices.SortStableFunc(out, func(a, b registry.Snapshot) int {
		return cmp.Compare(a.Status.Rank(), b.Status.Rank())
	})
	return out
}
