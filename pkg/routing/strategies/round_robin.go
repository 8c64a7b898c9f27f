package strategies

import (
	"strings"

	"mercator-hq/prism/pkg/registry"
)

// RoundRobin rotates the candidate list so that each provider heads the
// chain in turn. The rotation start comes from a shared cursor keyed by the
// candidate set, so concurrent requests never observe the same start until
// the set has been cycled.
type RoundRobin struct {
	cursor Cursor
}

// NewRoundRobin creates a round-robin strategy over cursor.
func NewRoundRobin(cursor Cursor) *RoundRobin {
	return &RoundRobin{cursor: cursor}
}

// Name implements routing.Strategy.
func (s *RoundRobin) Name() string { return NameRoundRobin }

// Order implements routing.Strategy.
func (s *RoundRobin) Order(candidates []registry.Snapshot) []registry.Snapshot {
	n := len(candidates)
	if n == 0 {
		return nil
	}

	ids := make([]string, n)
	for i, c := range candidates {
		ids[i] = c.ID()
	}
	start := int(s.cursor.Next(strings.Join(ids, ",")) % uint64(n))

	out := make([]registry.Snapshot, 0, n)
	out = append(out, candidates[start:]...)
	return append(out, candidates[:start]...)
}
