package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"mercator-hq/prism/internal/routing"
	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/registry"
)

func TestNew(t *testing.T) {
	if got := New(0).checkTimeout; got != 5*time.Second {
		t.Errorf("default timeout = %v", got)
	}
	if got := New(time.Second).checkTimeout; got != time.Second {
		t.Errorf("timeout = %v", got)
	}
}

func TestRegisterCheck(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("b", func(context.Context) error { return nil })
	c.RegisterCheck("a", func(context.Context) error { return nil })
	c.RegisterCheck("a", func(context.Context) error { return errors.New("replaced") })

	if got := c.ListChecks(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("ListChecks() = %v", got)
	}

	status := c.CheckReadiness(context.Background())
	if status.Checks["a"].Message != "replaced" {
		t.Errorf("check a = %+v, want the replacement", status.Checks["a"])
	}

	c.UnregisterCheck("a")
	if got := c.ListChecks(); !slices.Equal(got, []string{"b"}) {
		t.Errorf("ListChecks() after unregister = %v", got)
	}
}

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, "ready"},
		{
			"all pass",
			map[string]CheckFunc{
				"a": func(context.Context) error { return nil },
				"b": func(context.Context) error { return nil },
			},
			"ready",
		},
		{
			"one fails",
			map[string]CheckFunc{
				"a": func(context.Context) error { return nil },
				"b": func(context.Context) error { return errors.New("down") },
			},
			"degraded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, fn := range tt.checks {
				c.RegisterCheck(name, fn)
			}
			got := c.CheckReadiness(context.Background())
			if got.Status != tt.want {
				t.Errorf("Status = %q, want %q", got.Status, tt.want)
			}
			if len(got.Checks) != len(tt.checks) {
				t.Errorf("got %d results, want %d", len(got.Checks), len(tt.checks))
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("stuck", func(context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	start := time.Now()
	status := c.CheckReadiness(context.Background())
	if time.Since(start) > 500*time.Millisecond {
		t.Error("readiness waited for a stuck check")
	}
	if r := status.Checks["stuck"]; r.Status != "unhealthy" || r.Message != ErrCheckTimeout.Error() {
		t.Errorf("stuck = %+v", r)
	}
}

func desc(id string) registry.Descriptor {
	return registry.Descriptor{ID: id, Kind: providers.KindSDK, Dialect: canonical.DialectOpenAI, Client: "echo"}
}

func newRegistry(t *testing.T, ids ...string) *registry.Registry {
	t.Helper()
	r := registry.New(registry.Options{})
	for _, id := range ids {
		if err := r.Register(desc(id), routing.NewFakeProvider(id)); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}
	return r
}

func TestProvidersCheck(t *testing.T) {
	r := newRegistry(t, "a", "b", "c")
	for range 3 {
		r.RecordProbe("a", errors.New("refused"))
	}
	_ = r.Deregister("b")

	tests := []struct {
		min     int
		wantErr bool
	}{
		{0, false},
		{1, false},
		{2, true},
	}
	for _, tt := range tests {
		err := ProvidersCheck(r, tt.min)(context.Background())
		if (err != nil) != tt.wantErr {
			t.Errorf("min %d: error = %v, wantErr %v", tt.min, err, tt.wantErr)
		}
	}

	if err := ProvidersCheck(registry.New(registry.Options{}), 1)(context.Background()); err == nil {
		t.Error("empty registry should not be ready")
	}
}

func TestLivenessHandler(t *testing.T) {
	r := newRegistry(t, "a", "b")
	r.RecordOutcome("a", true, time.Millisecond, nil)
	_ = r.Deregister("b")

	c := New(time.Second)
	c.SetSummary(ProviderSummary(r))
	// Liveness must not depend on checks.
	c.RegisterCheck("broken", func(context.Context) error { return errors.New("down") })

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodHead, http.StatusOK},
		{http.MethodPost, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c.LivenessHandler()(rec, httptest.NewRequest(tt.method, "/health", nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.method != http.MethodGet {
				return
			}
			var body HealthStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != "ok" || body.Providers["a"] != "healthy" || body.Providers["b"] != "disabled" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	r := newRegistry(t, "a")
	c := New(time.Second)
	c.RegisterCheck("providers", ProvidersCheck(r, 1))

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}

	for range 3 {
		r.RecordProbe("a", errors.New("refused"))
	}
	rec = httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unready status = %d", rec.Code)
	}

	var body HealthStatus
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Status != "degraded" || body.Checks["providers"].Status != "unhealthy" {
		t.Errorf("body = %+v", body)
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc123", "2026-10-01")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("info = %+v", info)
	}
}
