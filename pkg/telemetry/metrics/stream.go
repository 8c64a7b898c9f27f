package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/prism/pkg/config"
)

// StreamMetrics tracks streamed responses.
//
// Metrics:
//   - prism_gateway_streams_active: streams currently open to clients
//   - prism_gateway_stream_chunks: chunks delivered per stream
//   - prism_gateway_streams_total: finished streams by outcome
type StreamMetrics struct {
	active *prometheus.GaugeVec
	chunks *prometheus.HistogramVec
	total  *prometheus.CounterVec
}

// NewStreamMetrics creates and registers stream metrics.
func NewStreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StreamMetrics {
	sm := &StreamMetrics{
		active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "streams_active",
				Help:      "Streams currently open to clients",
			},
			[]string{"dialect"},
		),

		chunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_chunks",
				Help:      "Chunks delivered per stream",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 7), // 1 to 4096
			},
			[]string{"provider"},
		),

		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "streams_total",
				Help:      "Finished streams by outcome",
			},
			[]string{"dialect", "outcome"},
		),
	}

	registry.MustRegister(sm.active, sm.chunks, sm.total)
	return sm
}

// Started increments the active gauge.
func (sm *StreamMetrics) Started(dialect string) {
	sm.active.WithLabelValues(dialect).Inc()
}

// Finished decrements the active gauge and records the stream.
func (sm *StreamMetrics) Finished(dialect, provider string, chunks int, interrupted bool) {
	sm.active.WithLabelValues(dialect).Dec()
	sm.chunks.WithLabelValues(provider).Observe(float64(chunks))

	outcome := "complete"
	if interrupted {
		outcome = "interrupted"
	}
	sm.total.WithLabelValues(dialect, outcome).Inc()
}
