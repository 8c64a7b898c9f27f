package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/normalizer"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	l.now = func() time.Time { return now }

	for i := range 2 {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("request %d within burst was rejected", i)
		}
	}
	ok, wait := l.Allow("a")
	if ok {
		t.Fatal("request over burst was allowed")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v", wait)
	}

	if ok, _ := l.Allow("b"); !ok {
		t.Error("clients must not share a bucket")
	}

	now = now.Add(time.Second)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("bucket did not refill")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{})
	if l.limit != 10 || l.burst != 20 {
		t.Errorf("limit/burst = %v/%d", l.limit, l.burst)
	}
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 5, Burst: 5})
	l.now = func() time.Time { return now }

	_, _ = l.Allow("old")
	now = now.Add(time.Minute)
	_, _ = l.Allow("recent")
	if l.Clients() != 2 {
		t.Fatalf("Clients() = %d, want 2", l.Clients())
	}

	now = now.Add(l.idleTTL)
	_, _ = l.Allow("new")
	if l.Clients() != 2 {
		t.Errorf("Clients() after sweep = %d, want 2", l.Clients())
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 10})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed = %d, want exactly the burst of 10", allowed)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, KeyHeader: "X-Tenant"})
	var limited []string
	wrapped := RateLimitMiddleware(l, normalizer.New(nil), func(d string) { limited = append(limited, d) })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	send := func(tenant, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("X-Tenant", tenant)
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		return w
	}

	if w := send("t1", "/v1/messages"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w := send("t1", "/v1/messages")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	if !strings.Contains(w.Body.String(), `"rate_limit_error"`) {
		t.Errorf("body = %s, want anthropic rate limit envelope", w.Body.String())
	}
	if len(limited) != 1 || limited[0] != "anthropic" {
		t.Errorf("onLimited calls = %v", limited)
	}

	if w := send("t2", "/v1/chat/completions"); w.Code != http.StatusOK {
		t.Errorf("other tenant status = %d", w.Code)
	}
}
