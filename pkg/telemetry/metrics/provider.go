package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/registry"
	"mercator-hq/prism/pkg/routing"
)

// ProviderMetrics tracks upstream attempts.
//
// Metrics:
//   - prism_gateway_provider_attempts_total: attempts by provider and outcome
//   - prism_gateway_provider_latency_seconds: latency of successful attempts
type ProviderMetrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewProviderMetrics creates and registers provider metrics.
func NewProviderMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_attempts_total",
				Help:      "Total number of provider attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_latency_seconds",
				Help:      "Latency of successful provider attempts in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(pm.attempts, pm.latency)
	return pm
}

// RecordAttempt records one attempt. Only successes feed the latency
// histogram, mirroring the registry's EWMA.
func (pm *ProviderMetrics) RecordAttempt(provider string, outcome routing.Outcome, latency time.Duration) {
	pm.attempts.WithLabelValues(provider, string(outcome)).Inc()
	if outcome == routing.OutcomeSuccess {
		pm.latency.WithLabelValues(provider).Observe(latency.Seconds())
	}
}

// registryCollector reads provider state from registry snapshots on every
// scrape, so gauges never go stale after a provider is removed.
type registryCollector struct {
	registry *registry.Registry

	health   *prometheus.Desc
	latency  *prometheus.Desc
	inFlight *prometheus.Desc
	failures *prometheus.Desc
	enabled  *prometheus.Desc
}

func newRegistryCollector(cfg *config.MetricsConfig, r *registry.Registry) *registryCollector {
	name := func(n string) string {
		return prometheus.BuildFQName(cfg.Namespace, cfg.Subsystem, n)
	}
	return &registryCollector{
		registry: r,
		health: prometheus.NewDesc(name("provider_health"),
			"Provider health status (1 for the current status)", []string{"provider", "status"}, nil),
		latency: prometheus.NewDesc(name("provider_latency_ewma_seconds"),
			"Exponentially weighted moving average of provider latency", []string{"provider"}, nil),
		inFlight: prometheus.NewDesc(name("provider_in_flight"),
			"Requests currently in flight to the provider", []string{"provider"}, nil),
		failures: prometheus.NewDesc(name("provider_consecutive_failures"),
			"Current streak of failed attempts and probes", []string{"provider"}, nil),
		enabled: prometheus.NewDesc(name("provider_enabled"),
			"Whether the provider is registered and enabled", []string{"provider"}, nil),
	}
}

var statuses = []registry.Status{
	registry.StatusUnknown,
	registry.StatusHealthy,
	registry.StatusDegraded,
	registry.StatusUnhealthy,
}

// Describe implements prometheus.Collector.
func (rc *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- rc.health
	ch <- rc.latency
	ch <- rc.inFlight
	ch <- rc.failures
	ch <- rc.enabled
}

// Collect implements prometheus.Collector.
func (rc *registryCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range rc.registry.Snapshots() {
		id := s.ID()
		for _, status := range statuses {
			v := 0.0
			if s.Status == status {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(rc.health, prometheus.GaugeValue, v, id, string(status))
		}
		if s.Measured {
			ch <- prometheus.MustNewConstMetric(rc.latency, prometheus.GaugeValue, s.LatencyMS/1000, id)
		}
		ch <- prometheus.MustNewConstMetric(rc.inFlight, prometheus.GaugeValue, float64(s.InFlight), id)
		ch <- prometheus.MustNewConstMetric(rc.failures, prometheus.GaugeValue, float64(s.ConsecutiveFailures), id)

		enabled := 0.0
		if s.Enabled {
			enabled = 1
		}
		ch <- prometheus.MustNewConstMetric(rc.enabled, prometheus.GaugeValue, enabled, id)
	}
}
