package routing

import (
	"strings"
	"time"

	"mercator-hq/prism/pkg/canonical"
)

// State is a dispatch lifecycle state.
type State string

const (
	StateInit      State = "INIT"
	StateSelecting State = "SELECTING"
	StateCalling   State = "CALLING"
	StateStreaming State = "STREAMING"
	StateComplete  State = "COMPLETE"
	StateFailed    State = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Outcome is the result of one attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Attempt records one provider invocation, or a provider that was passed
// over without being called.
type Attempt struct {
	Provider   string        `json:"provider"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Timeout    bool          `json:"timeout,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Decision is the audit record of how one request was routed.
type Decision struct {
	RequestID string            `json:"request_id"`
	Model     string            `json:"model"`
	Dialect   canonical.Dialect `json:"dialect"`
	Stream    bool              `json:"stream"`
	Strategy  string            `json:"strategy"`
	Explicit  bool              `json:"explicit"`

	// Candidates is the planned chain in order.
	Candidates []string  `json:"candidates"`
	Attempts   []Attempt `json:"attempts"`

	// Provider is the provider that served the request, if any.
	Provider string `json:"provider,omitempty"`

	State State     `json:"state"`
	Error string    `json:"error,omitempty"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AttemptedProviders returns the provider of every attempt, in order.
func (d *Decision) AttemptedProviders() []string {
	out := make([]string, 0, len(d.Attempts))
	for _, a := range d.Attempts {
		out = append(out, a.Provider)
	}
	return out
}

// AttemptsHeader formats the attempts as "id=outcome" pairs for the
// X-Prism-Attempts response header.
func (d *Decision) AttemptsHeader() string {
	parts := make([]string, 0, len(d.Attempts))
	for _, a := range d.Attempts {
		parts = append(parts, a.Provider+"="+string(a.Outcome))
	}
	return strings.Join(parts, ",")
}

// Duration returns the time from start to end.
func (d *Decision) Duration() time.Duration {
	if d.End.IsZero() {
		return 0
	}
	return d.End.Sub(d.Start)
}
