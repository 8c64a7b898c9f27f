package strategies

import (
	"math"

	"mercator-hq/prism/pkg/registry"
)

// LowestLatency orders providers by latency EWMA. Providers that have not
// served a request yet sort first so that they get measured.
type LowestLatency struct{}

func NewLowestLatency() *LowestLatency { return &LowestLatency{} }

func (*LowestLatency) Name() string { return NameLowestLatency }

func (*LowestLatency) Order(candidates []registry.Snapshot) []registry.Snapshot {
	return sortedBy(candidates, func(s registry.Snapshot) float64 {
		if !s.Measured {
			return math.Inf(-1)
		}
		return s.LatencyMS
	})
}
