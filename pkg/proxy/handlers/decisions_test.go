package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"mercator-hq/prism/pkg/audit"
	"mercator-hq/prism/pkg/routing"
)

func newDecisionsMux(t *testing.T, now time.Time) *http.ServeMux {
	t.Helper()
	store := audit.NewMemoryStore()
	records := []*audit.Record{
		{ID: "1", RequestID: "req-1", Model: "gpt-4o", Provider: "a", State: routing.StateComplete, Start: now.Add(-3 * time.Hour)},
		{ID: "2", RequestID: "req-2", Model: "gpt-4o", Provider: "b", State: routing.StateFailed, Start: now.Add(-30 * time.Minute)},
		{ID: "3", RequestID: "req-3", Model: "claude", Provider: "a", State: routing.StateComplete, Start: now.Add(-time.Minute)},
	}
	for _, r := range records {
		if err := store.Save(context.Background(), r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	h := NewDecisions(store)
	h.now = func() time.Time { return now }
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func TestDecisions_List(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query string
		ids   []string
	}{
		{"all newest first", "", []string{"3", "2", "1"}},
		{"by provider", "?provider=a", []string{"3", "1"}},
		{"by state", "?state=FAILED", []string{"2"}},
		{"by model", "?model=claude", []string{"3"}},
		{"relative since", "?since=1h", []string{"3", "2"}},
		{"absolute since", "?since=2026-03-01T11:50:00Z", []string{"3"}},
		{"limit and offset", "?limit=1&offset=1", []string{"2"}},
		{"no match", "?request_id=missing", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newDecisionsMux(t, now)
			w := serve(mux, http.MethodGet, "/decisions"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			var out struct {
				Decisions []audit.Record `json:"decisions"`
				Count     int            `json:"count"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.Decisions == nil {
				t.Fatal("decisions should encode as an array")
			}
			if out.Count != len(tt.ids) || len(out.Decisions) != len(tt.ids) {
				t.Fatalf("count = %d, decisions = %d, want %d", out.Count, len(out.Decisions), len(tt.ids))
			}
			for i, id := range tt.ids {
				if out.Decisions[i].ID != id {
					t.Errorf("decisions[%d] = %s, want %s", i, out.Decisions[i].ID, id)
				}
			}
		})
	}
}

func TestDecisions_BadQuery(t *testing.T) {
	mux := newDecisionsMux(t, time.Now())
	for _, q := range []string{"?since=yesterday", "?until=-5m", "?limit=ten", "?offset=-1"} {
		if w := serve(mux, http.MethodGet, "/decisions"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}
