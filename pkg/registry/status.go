package registry

import "time"

// Status is a provider's health state.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Rank orders statuses from most to least preferred.
func (s Status) Rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusUnknown:
		return 1
	case StatusDegraded:
		return 2
	default:
		return 3
	}
}

// Snapshot is a point-in-time copy of a provider's descriptor and metrics.
type Snapshot struct {
	Descriptor Descriptor `json:"descriptor"`
	Enabled    bool       `json:"enabled"`
	Status     Status     `json:"status"`

	// LatencyMS is the latency EWMA in milliseconds; valid when Measured.
	LatencyMS float64 `json:"latency_ewma_ms"`
	Measured  bool    `json:"measured"`

	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalErrors         int64     `json:"total_errors"`
	TotalSuccesses      int64     `json:"total_successes"`
	InFlight            int64     `json:"in_flight"`
	LastCheck           time.Time `json:"last_check,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
}

// ID returns the provider id.
func (s Snapshot) ID() string {
	return s.Descriptor.ID
}
