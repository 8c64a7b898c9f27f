package routing

import (
	"log/slog"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/registry"
)

// Strategy orders eligible providers. Implementations must be safe for
// concurrent use and must return a permutation of their input.
type Strategy interface {
	// Order returns the candidates in the order they should be tried.
	Order(candidates []registry.Snapshot) []registry.Snapshot

	// Name returns the strategy name for logging and statistics.
	Name() string
}

// StrategyExplicit is the strategy name recorded for explicit selections.
const StrategyExplicit = "explicit"

// SelectCandidates orders eligible providers with s.
func SelectCandidates(eligible []registry.Snapshot, s Strategy) []registry.Snapshot {
	if len(eligible) <= 1 {
		return eligible
	}
	return s.Order(eligible)
}

// Plan is an ordered fallback chain for one request.
type Plan struct {
	Candidates []registry.Snapshot
	Strategy   string
	Explicit   bool
}

// IDs returns the candidate ids in order.
func (p *Plan) IDs() []string {
	ids := make([]string, 0, len(p.Candidates))
	for _, c := range p.Candidates {
		ids = append(ids, c.ID())
	}
	return ids
}

// Balancer turns a request into a Plan.
type Balancer struct {
	registry    *registry.Registry
	strategy    Strategy
	maxAttempts int
	stats       *AtomicRoutingStats
	logger      *slog.Logger
}

// NewBalancer creates a balancer. maxAttempts caps the chain length; zero
// means no cap.
func NewBalancer(r *registry.Registry, s Strategy, maxAttempts int) *Balancer {
	return &Balancer{
		registry:    r,
		strategy:    s,
		maxAttempts: maxAttempts,
		stats:       NewAtomicRoutingStats(),
		logger:      slog.Default().With("component", "routing"),
	}
}

// Strategy returns the configured strategy.
func (b *Balancer) Strategy() Strategy {
	return b.strategy
}

// Stats returns the routing statistics.
func (b *Balancer) Stats() *AtomicRoutingStats {
	return b.stats
}

// Plan builds the fallback chain for req. A non-empty explicit provider id
// bypasses selection: the chain is exactly that provider, whatever its
// health or model set.
func (b *Balancer) Plan(req *canonical.Request, explicit string) (*Plan, error) {
	if explicit != "" {
		s, ok := b.registry.Snapshot(explicit)
		if !ok || !s.Enabled {
			b.stats.recordError()
			return nil, &ProviderNotFoundError{
				ProviderName:       explicit,
				AvailableProviders: b.registry.IDs(),
			}
		}
		b.stats.recordPlan(StrategyExplicit, explicit, true, false)
		return &Plan{Candidates: []registry.Snapshot{s}, Strategy: StrategyExplicit, Explicit: true}, nil
	}

	eligible := b.registry.EligibleProviders(req.Model)
	if len(eligible) == 0 {
		b.stats.recordError()
		return nil, &NoProvidersError{Model: req.Model}
	}
	filtered := len(eligible) < len(b.registry.Matching(req.Model))

	ordered := SelectCandidates(eligible, b.strategy)
	if b.maxAttempts > 0 && len(ordered) > b.maxAttempts {
		ordered = ordered[:b.maxAttempts]
	}

	b.stats.recordPlan(b.strategy.Name(), ordered[0].ID(), false, filtered)

	plan := &Plan{Candidates: ordered, Strategy: b.strategy.Name()}
	b.logger.Debug("routing plan",
		"model", req.Model,
		"strategy", plan.Strategy,
		"candidates", plan.IDs(),
	)
	return plan, nil
}
