package proxy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/prism/pkg/dialect"
)

func TestReadBody(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
		body, err := ReadBody(httptest.NewRecorder(), r, 64)
		if err != nil || string(body) != `{"a":1}` {
			t.Errorf("ReadBody() = %q, %v", body, err)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 65)))
		_, err := ReadBody(httptest.NewRecorder(), r, 64)
		var re *RequestError
		if !errors.As(err, &re) || re.Status != http.StatusRequestEntityTooLarge {
			t.Errorf("ReadBody() error = %v, want 413 RequestError", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(" \n"))
		_, err := ReadBody(httptest.NewRecorder(), r, 64)
		var ve *dialect.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("ReadBody() error = %v, want ValidationError", err)
		}
	})

	t.Run("default limit", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 1<<20)))
		if _, err := ReadBody(httptest.NewRecorder(), r, 0); err != nil {
			t.Errorf("ReadBody() with default limit = %v", err)
		}
	})
}

func TestClientKey(t *testing.T) {
	req := func(mod func(r *http.Request)) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
		r.RemoteAddr = "10.0.0.7:51234"
		if mod != nil {
			mod(r)
		}
		return r
	}

	if got := ClientKey(req(nil), ""); got != "ip:10.0.0.7" {
		t.Errorf("remote only = %q", got)
	}
	if got := ClientKey(req(func(r *http.Request) { r.Header.Set("X-Tenant", "acme") }), "X-Tenant"); got != "h:acme" {
		t.Errorf("header = %q", got)
	}

	bearer := ClientKey(req(func(r *http.Request) { r.Header.Set("Authorization", "Bearer sk-abc") }), "X-Tenant")
	anthropic := ClientKey(req(func(r *http.Request) { r.Header.Set("x-api-key", "sk-abc") }), "")
	gemini := ClientKey(req(func(r *http.Request) { r.URL.RawQuery = "key=sk-abc" }), "")
	if !strings.HasPrefix(bearer, "k:") || bearer != anthropic || bearer != gemini {
		t.Errorf("same key in different headers = %q %q %q", bearer, anthropic, gemini)
	}
	if strings.Contains(bearer, "sk-abc") {
		t.Error("client key must not contain the raw API key")
	}

	other := ClientKey(req(func(r *http.Request) { r.Header.Set("x-goog-api-key", "sk-xyz") }), "")
	if other == bearer {
		t.Error("different keys share a client key")
	}
}
