package audit

import (
	"time"

	"github.com/google/uuid"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/routing"
)

// Record is the stored form of a routing decision.
type Record struct {
	ID         string            `json:"id"`
	RequestID  string            `json:"request_id"`
	Model      string            `json:"model"`
	Dialect    canonical.Dialect `json:"dialect"`
	Stream     bool              `json:"stream"`
	Strategy   string            `json:"strategy"`
	Explicit   bool              `json:"explicit"`
	Provider   string            `json:"provider,omitempty"`
	State      routing.State     `json:"state"`
	Error      string            `json:"error,omitempty"`
	Candidates []string          `json:"candidates"`
	Attempts   []routing.Attempt `json:"attempts"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Duration   time.Duration     `json:"duration"`
}

// FromDecision converts a finished decision into a record with a new id.
func FromDecision(d *routing.Decision) *Record {
	return &Record{
		ID:         uuid.NewString(),
		RequestID:  d.RequestID,
		Model:      d.Model,
		Dialect:    d.Dialect,
		Stream:     d.Stream,
		Strategy:   d.Strategy,
		Explicit:   d.Explicit,
		Provider:   d.Provider,
		State:      d.State,
		Error:      d.Error,
		Candidates: append([]string(nil), d.Candidates...),
		Attempts:   append([]routing.Attempt(nil), d.Attempts...),
		Start:      d.Start,
		End:        d.End,
		Duration:   d.Duration(),
	}
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	RequestID string
	Provider  string
	Model     string
	State     routing.State
	Since     time.Time
	Until     time.Time

	// Limit caps the result; default 100.
	Limit  int
	Offset int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Matches reports whether r satisfies every set field of f.
func (f Filter) Matches(r *Record) bool {
	switch {
	case f.RequestID != "" && r.RequestID != f.RequestID:
		return false
	case f.Provider != "" && r.Provider != f.Provider:
		return false
	case f.Model != "" && r.Model != f.Model:
		return false
	case f.State != "" && r.State != f.State:
		return false
	case !f.Since.IsZero() && r.Start.Before(f.Since):
		return false
	case !f.Until.IsZero() && !r.Start.Before(f.Until):
		return false
	}
	return true
}
