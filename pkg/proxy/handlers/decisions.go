package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/prism/pkg/audit"
	"mercator-hq/prism/pkg/proxy"
	"mercator-hq/prism/pkg/routing"
)

// maxDecisionLimit caps a single page of GET /decisions.
const maxDecisionLimit = 1000

// Decisions serves GET /decisions from the audit store.
//
// Query parameters: request_id, provider, model, state, since and until
// (RFC 3339, or a Go duration such as "1h" meaning that long ago), limit
// and offset.
type Decisions struct {
	store audit.Store
	now   func() time.Time
}

// NewDecisions creates the audit query handler.
func NewDecisions(store audit.Store) *Decisions {
	return &Decisions{store: store, now: time.Now}
}

// Register adds the audit route to mux.
func (h *Decisions) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /decisions", h.List)
}

type decisionsResponse struct {
	Decisions []*audit.Record `json:"decisions"`
	Count     int             `json:"count"`
}

// List returns matching decisions, newest first.
func (h *Decisions) List(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		proxy.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	records, err := h.store.Query(r.Context(), f)
	if err != nil {
		proxy.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}
	proxy.WriteJSON(w, http.StatusOK, decisionsResponse{Decisions: records, Count: len(records)})
}

func (h *Decisions) filter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		RequestID: q.Get("request_id"),
		Provider:  q.Get("provider"),
		Model:     q.Get("model"),
		State:     routing.State(q.Get("state")),
	}

	var err error
	if f.Since, err = h.parseTime("since", q.Get("since")); err != nil {
		return f, err
	}
	if f.Until, err = h.parseTime("until", q.Get("until")); err != nil {
		return f, err
	}
	if f.Limit, err = parseCount("limit", q.Get("limit")); err != nil {
		return f, err
	}
	if f.Limit > maxDecisionLimit {
		f.Limit = maxDecisionLimit
	}
	if f.Offset, err = parseCount("offset", q.Get("offset")); err != nil {
		return f, err
	}
	return f, nil
}

// ParseSince parses an absolute RFC 3339 time or a duration relative to now.
func ParseSince(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or a duration like 1h", raw)
	}
	return now.Add(-d), nil
}

func (h *Decisions) parseTime(name, raw string) (time.Time, error) {
	t, err := ParseSince(raw, h.now())
	if err != nil {
		return t, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func parseCount(name, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid count %q", name, raw)
	}
	return n, nil
}
