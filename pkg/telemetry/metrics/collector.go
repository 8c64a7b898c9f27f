package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/registry"
	"mercator-hq/prism/pkg/routing"
)

// Collector owns the gateway's Prometheus metrics. It implements the
// dispatcher's Observer interface and exports provider state from the
// registry at scrape time.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	providerMetrics *ProviderMetrics
	streamMetrics   *StreamMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registering into reg. A nil reg gets a
// fresh registry. Unset namespace, subsystem and buckets are defaulted.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.WatchRegistry(reg)
//	d := dispatch.New(reg, balancer, dispatch.Config{Observer: collector})
func NewCollector(cfg *config.MetricsConfig, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// LLM latencies: 100ms to 2min
		cfg.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}
	}
	if len(cfg.TokenCountBuckets) == 0 {
		cfg.TokenCountBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}

	c := &Collector{
		config:             cfg,
		registry:           reg,
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}
	c.requestMetrics = NewRequestMetrics(cfg, reg)
	c.providerMetrics = NewProviderMetrics(cfg, reg)
	c.streamMetrics = NewStreamMetrics(cfg, reg)
	return c
}

// WatchRegistry exports the health, latency EWMA and in-flight count of
// every provider in r. Values are read from snapshots on each scrape.
func (c *Collector) WatchRegistry(r *registry.Registry) error {
	return c.registry.Register(newRegistryCollector(c.config, r))
}

// ObserveAttempt records one provider attempt.
func (c *Collector) ObserveAttempt(provider string, outcome routing.Outcome, latency time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.providerMetrics.RecordAttempt(provider, outcome, latency)
}

// ObserveDecision records a finished request.
func (c *Collector) ObserveDecision(d *routing.Decision) {
	if !c.config.Enabled || d == nil {
		return
	}

	model := d.Model
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("request:%s:%s", d.Dialect, model)) {
		model = "other"
	}
	provider := d.Provider
	if provider == "" {
		provider = "none"
	}
	c.requestMetrics.RecordDecision(string(d.Dialect), model, provider, d)
}

// RecordTokens records the token usage of a served request.
func (c *Collector) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if !c.config.Enabled {
		return
	}
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("tokens:%s:%s", provider, model)) {
		model = "other"
	}
	c.requestMetrics.RecordTokens(provider, model, promptTokens, completionTokens)
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (c *Collector) RecordRateLimited(dialect string) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRateLimited(dialect)
}

// StreamStarted marks a stream as open to the client.
func (c *Collector) StreamStarted(dialect string) {
	if !c.config.Enabled {
		return
	}
	c.streamMetrics.Started(dialect)
}

// StreamFinished marks a stream as closed and records how it ended.
func (c *Collector) StreamFinished(dialect, provider string, chunks int, interrupted bool) {
	if !c.config.Enabled {
		return
	}
	c.streamMetrics.Finished(dialect, provider, chunks, interrupted)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label set may be used: it is already known or
// the limit has not been reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
