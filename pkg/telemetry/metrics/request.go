package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/routing"
)

// RequestMetrics tracks client-facing requests.
//
// Metrics:
//   - prism_gateway_requests_total: requests by dialect, model, provider, state
//   - prism_gateway_request_duration_seconds: end-to-end dispatch duration
//   - prism_gateway_request_attempts: attempts per request
//   - prism_gateway_fallbacks_total: requests served after at least one failed attempt
//   - prism_gateway_tokens: token usage per request
//   - prism_gateway_rate_limited_total: requests rejected by the rate limiter
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	attempts        *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	tokens          *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of gateway requests by final state",
			},
			[]string{"dialect", "model", "provider", "state"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of gateway requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"dialect", "stream"},
		),

		attempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_attempts",
				Help:      "Provider attempts per request, skipped providers included",
				Buckets:   []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"dialect"},
		),

		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fallbacks_total",
				Help:      "Requests served by a provider other than the first candidate",
			},
			[]string{"provider"},
		),

		tokens: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens",
				Help:      "Token usage per request",
				Buckets:   cfg.TokenCountBuckets,
			},
			[]string{"provider", "model", "type"},
		),

		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the gateway rate limiter",
			},
			[]string{"dialect"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.attempts,
		rm.fallbacks,
		rm.tokens,
		rm.rateLimited,
	)
	return rm
}

// RecordDecision records a finished routing decision.
func (rm *RequestMetrics) RecordDecision(dialect, model, provider string, d *routing.Decision) {
	rm.requestsTotal.WithLabelValues(dialect, model, provider, string(d.State)).Inc()

	stream := "false"
	if d.Stream {
		stream = "true"
	}
	rm.requestDuration.WithLabelValues(dialect, stream).Observe(d.Duration().Seconds())
	rm.attempts.WithLabelValues(dialect).Observe(float64(len(d.Attempts)))

	if d.State == routing.StateComplete && len(d.Attempts) > 1 {
		rm.fallbacks.WithLabelValues(provider).Inc()
	}
}

// RecordTokens records prompt and completion token counts.
func (rm *RequestMetrics) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		rm.tokens.WithLabelValues(provider, model, "prompt").Observe(float64(promptTokens))
	}
	if completionTokens > 0 {
		rm.tokens.WithLabelValues(provider, model, "completion").Observe(float64(completionTokens))
	}
}

// RecordRateLimited counts a rejected request.
func (rm *RequestMetrics) RecordRateLimited(dialect string) {
	rm.rateLimited.WithLabelValues(dialect).Inc()
}
