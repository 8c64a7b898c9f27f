package strategies

import "mercator-hq/prism/pkg/registry"

// LeastInFlight prefers providers with the fewest requests in flight.
type LeastInFlight struct{}

func NewLeastInFlight() *LeastInFlight { return &LeastInFlight{} }

func (*LeastInFlight) Name() string { return NameLeastInFlight }

func (*LeastInFlight) Order(candidates []registry.Snapshot) []registry.Snapshot {
	return sortedBy(candidates, func(s registry.Snapshot) int64 { return s.InFlight })
}
