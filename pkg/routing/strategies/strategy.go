package strategies

import (
	"cmp"
	"slices"

	"mercator-hq/prism/pkg/registry"
	"mercator-hq/prism/pkg/routing"
)

// Strategy names accepted by New.
const (
	NameRoundRobin     = "round-robin"
	NameLeastInFlight  = "least-in-flight"
	NameLowestLatency  = "lowest-latency"
	NameWeightedRandom = "weighted-random"
	NameHealthPriority = "health-priority"
)

// Names lists the available strategies.
func Names() []string {
	return []string{NameRoundRobin, NameLeastInFlight, NameLowestLatency, NameWeightedRandom, NameHealthPriority}
}

// Cursor hands out distinct, increasing values for a key. The registry
// implements it.
type Cursor interface {
	Next(key string) uint64
}

// New builds the named strategy. secondary is only used by health-priority,
// where it orders providers of equal health; it defaults to round-robin.
func New(name string, cursor Cursor, secondary string) (routing.Strategy, error) {
	switch name {
	case NameRoundRobin, "":
		return NewRoundRobin(cursor), nil
	case NameLeastInFlight:
		return NewLeastInFlight(), nil
	case NameLowestLatency:
		return NewLowestLatency(), nil
	case NameWeightedRandom:
		return NewWeightedRandom(nil), nil
	case NameHealthPriority:
		if secondary == NameHealthPriority {
			return nil, &routing.InvalidStrategyError{Strategy: secondary, AvailableStrategies: Names()}
		}
		inner, err := New(secondary, cursor, "")
		if err != nil {
			return nil, err
		}
		return NewHealthPriority(inner), nil
	default:
		return nil, &routing.InvalidStrategyError{Strategy: name, AvailableStrategies: Names()}
	}
}

// sortedBy returns a copy of candidates stably sorted by key, ties broken
// by provider id.
func sortedBy[K cmp.Ordered](candidates []registry.Snapshot, key func(registry.Snapshot) K) []registry.Snapshot {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, b registry.Snapshot) int {
		if c := cmp.Compare(key(a), key(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
	return out
}
