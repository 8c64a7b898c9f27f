package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/prism/internal/routing"
	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/registry"
	pkgrouting "mercator-hq/prism/pkg/routing"
)

func newTestCollector() *Collector {
	return NewCollector(&config.MetricsConfig{Enabled: true}, nil)
}

func TestNewCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, nil)

	if cfg.Namespace != "prism" || cfg.Subsystem != "gateway" {
		t.Errorf("namespace/subsystem = %s/%s", cfg.Namespace, cfg.Subsystem)
	}
	if len(cfg.RequestDurationBuckets) == 0 || len(cfg.TokenCountBuckets) == 0 {
		t.Error("buckets not defaulted")
	}
	if c.Registry() == nil {
		t.Error("Registry() = nil")
	}
}

func TestCollector_ObserveAttempt(t *testing.T) {
	c := newTestCollector()

	c.ObserveAttempt("a", pkgrouting.OutcomeSuccess, 200*time.Millisecond)
	c.ObserveAttempt("a", pkgrouting.OutcomeFailure, time.Second)
	c.ObserveAttempt("a", pkgrouting.OutcomeFailure, time.Second)

	attempts := c.providerMetrics.attempts
	if got := testutil.ToFloat64(attempts.WithLabelValues("a", "success")); got != 1 {
		t.Errorf("success attempts = %v", got)
	}
	if got := testutil.ToFloat64(attempts.WithLabelValues("a", "failure")); got != 2 {
		t.Errorf("failure attempts = %v", got)
	}
	if got := testutil.CollectAndCount(c.providerMetrics.latency); got != 1 {
		t.Errorf("latency series = %d, failures must not be observed", got)
	}
}

func TestCollector_ObserveDecision(t *testing.T) {
	c := newTestCollector()
	start := time.Now()

	served := &pkgrouting.Decision{
		Model:   "gpt-4o",
		Dialect: canonical.DialectOpenAI,
		State:   pkgrouting.StateComplete,
		Attempts: []pkgrouting.Attempt{
			{Provider: "a", Outcome: pkgrouting.OutcomeFailure},
			{Provider: "b", Outcome: pkgrouting.OutcomeSuccess},
		},
		Provider: "b",
		Start:    start,
		End:      start.Add(time.Second),
	}
	failed := &pkgrouting.Decision{
		Model:   "gpt-4o",
		Dialect: canonical.DialectOpenAI,
		State:   pkgrouting.StateFailed,
		Start:   start,
		End:     start.Add(time.Millisecond),
	}
	c.ObserveDecision(served)
	c.ObserveDecision(failed)
	c.ObserveDecision(nil)

	total := c.requestMetrics.requestsTotal
	if got := testutil.ToFloat64(total.WithLabelValues("openai", "gpt-4o", "b", "COMPLETE")); got != 1 {
		t.Errorf("served = %v", got)
	}
	if got := testutil.ToFloat64(total.WithLabelValues("openai", "gpt-4o", "none", "FAILED")); got != 1 {
		t.Errorf("failed = %v", got)
	}
	if got := testutil.ToFloat64(c.requestMetrics.fallbacks.WithLabelValues("b")); got != 1 {
		t.Errorf("fallbacks = %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	c := NewCollector(&config.MetricsConfig{Enabled: false}, nil)

	c.ObserveAttempt("a", pkgrouting.OutcomeSuccess, time.Millisecond)
	c.ObserveDecision(&pkgrouting.Decision{State: pkgrouting.StateComplete})
	c.RecordTokens("a", "m", 10, 20)
	c.RecordRateLimited("openai")
	c.StreamStarted("openai")

	if got := testutil.CollectAndCount(c.providerMetrics.attempts); got != 0 {
		t.Errorf("attempt series = %d, want 0", got)
	}
	if got := testutil.CollectAndCount(c.requestMetrics.requestsTotal); got != 0 {
		t.Errorf("request series = %d, want 0", got)
	}
}

func TestCollector_Streams(t *testing.T) {
	c := newTestCollector()

	c.StreamStarted("anthropic")
	c.StreamStarted("anthropic")
	if got := testutil.ToFloat64(c.streamMetrics.active.WithLabelValues("anthropic")); got != 2 {
		t.Errorf("active = %v", got)
	}

	c.StreamFinished("anthropic", "a", 12, false)
	c.StreamFinished("anthropic", "a", 3, true)
	if got := testutil.ToFloat64(c.streamMetrics.active.WithLabelValues("anthropic")); got != 0 {
		t.Errorf("active after finish = %v", got)
	}
	if got := testutil.ToFloat64(c.streamMetrics.total.WithLabelValues("anthropic", "interrupted")); got != 1 {
		t.Errorf("interrupted = %v", got)
	}
}

func TestCollector_TokensAndRateLimit(t *testing.T) {
	c := newTestCollector()
	c.RecordTokens("a", "m", 10, 0)
	c.RecordRateLimited("gemini")

	if got := testutil.CollectAndCount(c.requestMetrics.tokens); got != 1 {
		t.Errorf("token series = %d, zero counts must be skipped", got)
	}
	if got := testutil.ToFloat64(c.requestMetrics.rateLimited.WithLabelValues("gemini")); got != 1 {
		t.Errorf("rate limited = %v", got)
	}
}

func TestCollector_WatchRegistry(t *testing.T) {
	r := registry.New(registry.Options{})
	desc := func(id string) registry.Descriptor {
		return registry.Descriptor{ID: id, Kind: providers.KindSDK, Dialect: canonical.DialectOpenAI, Client: "echo"}
	}
	_ = r.Register(desc("up"), routing.NewFakeProvider("up"))
	_ = r.Register(desc("down"), routing.NewFakeProvider("down"))
	r.RecordOutcome("up", true, 150*time.Millisecond, nil)
	for range 3 {
		r.RecordProbe("down", errors.New("refused"))
	}
	r.Acquire("up")

	c := newTestCollector()
	if err := c.WatchRegistry(r); err != nil {
		t.Fatalf("WatchRegistry() error = %v", err)
	}

	expected := `
# HELP prism_gateway_provider_in_flight Requests currently in flight to the provider
# TYPE prism_gateway_provider_in_flight gauge
prism_gateway_provider_in_flight{provider="down"} 0
prism_gateway_provider_in_flight{provider="up"} 1
# HELP prism_gateway_provider_consecutive_failures Current streak of failed attempts and probes
# TYPE prism_gateway_provider_consecutive_failures gauge
prism_gateway_provider_consecutive_failures{provider="down"} 3
prism_gateway_provider_consecutive_failures{provider="up"} 0
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"prism_gateway_provider_in_flight", "prism_gateway_provider_consecutive_failures"); err != nil {
		t.Error(err)
	}

	if got := testutil.CollectAndCount(newRegistryCollector(c.config, r), "prism_gateway_provider_latency_ewma_seconds"); got != 1 {
		t.Errorf("latency series = %d, unmeasured providers must be omitted", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)
	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("first two label sets should be allowed")
	}
	if cl.Allow("c") {
		t.Error("third label set should be rejected")
	}
	if !cl.Allow("a") {
		t.Error("known label set should stay allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("Count() = %d", cl.Count())
	}
}

func TestHandler(t *testing.T) {
	c := newTestCollector()
	c.ObserveAttempt("a", pkgrouting.OutcomeSuccess, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `prism_gateway_provider_attempts_total{outcome="success",provider="a"} 1`) {
		t.Errorf("exposition missing attempt counter:\n%s", body)
	}
}
