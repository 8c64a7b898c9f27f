package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// RoutingStats is a point-in-time copy of routing counters.
type RoutingStats struct {
	// TotalRequests is the number of plans made.
	TotalRequests int64 `json:"total_requests"`

	// RequestsPerProvider counts how often each provider headed a chain.
	RequestsPerProvider map[string]int64 `json:"requests_per_provider"`

	// StrategyUseCount counts plans per strategy.
	StrategyUseCount map[string]int64 `json:"strategy_use_count"`

	// HealthFilteredCount is the number of plans where unhealthy providers
	// were left out.
	HealthFilteredCount int64 `json:"health_filtered_count"`

	// ExplicitCount is the number of plans for an explicitly named provider.
	ExplicitCount int64 `json:"explicit_count"`

	// Errors is the number of plans that found no provider.
	Errors int64 `json:"errors"`

	LastResetTime time.Time `json:"last_reset_time"`
}

// AtomicRoutingStats implements thread-safe routing statistics using atomic operations.
type AtomicRoutingStats struct {
	totalRequests       atomic.Int64
	requestsPerProvider sync.Map // map[string]*atomic.Int64
	strategyUseCount    sync.Map // map[string]*atomic.Int64
	healthFilteredCount atomic.Int64
	explicitCount       atomic.Int64
	errors              atomic.Int64

	lastResetTime time.Time
	mu            sync.RWMutex
}

// NewAtomicRoutingStats creates a new atomic routing statistics tracker.
func NewAtomicRoutingStats() *AtomicRoutingStats {
	return &AtomicRoutingStats{
		lastResetTime: time.Now(),
	}
}

func increment(m *sync.Map, key string) {
	val, _ := m.LoadOrStore(key, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func collect(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}

// recordPlan counts a successful plan.
func (s *AtomicRoutingStats) recordPlan(strategy, first string, explicit, filtered bool) {
	s.totalRequests.Add(1)
	increment(&s.strategyUseCount, strategy)
	increment(&s.requestsPerProvider, first)
	if explicit {
		s.explicitCount.Add(1)
	}
	if filtered {
		s.healthFilteredCount.Add(1)
	}
}

// recordError counts a plan that failed.
func (s *AtomicRoutingStats) recordError() {
	s.totalRequests.Add(1)
	s.errors.Add(1)
}

// Snapshot returns a point-in-time snapshot of the statistics.
func (s *AtomicRoutingStats) Snapshot() *RoutingStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &RoutingStats{
		TotalRequests:       s.totalRequests.Load(),
		RequestsPerProvider: collect(&s.requestsPerProvider),
		StrategyUseCount:    collect(&s.strategyUseCount),
		HealthFilteredCount: s.healthFilteredCount.Load(),
		ExplicitCount:       s.explicitCount.Load(),
		Errors:              s.errors.Load(),
		LastResetTime:       s.lastResetTime,
	}
}

// Reset resets all statistics to zero.
func (s *AtomicRoutingStats) Reset() {
	s.totalRequests.Store(0)
	s.healthFilteredCount.Store(0)
	s.explicitCount.Store(0)
	s.errors.Store(0)
	s.requestsPerProvider.Clear()
	s.strategyUseCount.Clear()

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
