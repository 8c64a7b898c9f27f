package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	mock "mercator-hq/prism/internal/providers"
	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/dialect/anthropic"
	"mercator-hq/prism/pkg/dialect/gemini"
	"mercator-hq/prism/pkg/dialect/openai"
	"mercator-hq/prism/pkg/providers"
)

func codecFor(d canonical.Dialect) dialect.Codec {
	switch d {
	case canonical.DialectAnthropic:
		return anthropic.New()
	case canonical.DialectGemini:
		return gemini.New()
	default:
		return openai.New()
	}
}

func newClient(t *testing.T, d canonical.Dialect, baseURL string) *Client {
	t.Helper()
	c, err := New(mock.TestConfig("up-"+string(d), d, baseURL), codecFor(d))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		cfg   providers.Config
		codec dialect.Codec
		field string
	}{
		{
			name:  "missing base url",
			cfg:   providers.Config{Name: "a", Dialect: canonical.DialectOpenAI},
			codec: openai.New(),
			field: "base_url",
		},
		{
			name:  "codec mismatch",
			cfg:   providers.Config{Name: "a", Dialect: canonical.DialectGemini, BaseURL: "http://x"},
			codec: openai.New(),
			field: "dialect",
		},
		{
			name:  "nil codec",
			cfg:   providers.Config{Name: "a", Dialect: canonical.DialectOpenAI, BaseURL: "http://x"},
			field: "dialect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.codec)
			var ce *providers.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("New() error = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestClient_Call(t *testing.T) {
	tests := []struct {
		dialect    canonical.Dialect
		model      string
		path       string
		body       map[string]any
		authHeader string
		authValue  string
	}{
		{
			dialect:    canonical.DialectOpenAI,
			model:      "gpt-4",
			path:       "/chat/completions",
			body:       mock.MockOpenAIResponse("Hello!", "gpt-4"),
			authHeader: "Authorization",
			authValue:  "Bearer test-key",
		},
		{
			dialect:    canonical.DialectAnthropic,
			model:      "claude-3",
			path:       "/messages",
			body:       mock.MockAnthropicResponse("Hello!", "claude-3"),
			authHeader: "X-Api-Key",
			authValue:  "test-key",
		},
		{
			dialect:    canonical.DialectGemini,
			model:      "gemini-pro",
			path:       "/models/gemini-pro:generateContent",
			body:       mock.MockGeminiResponse("Hello!", "gemini-pro"),
			authHeader: "X-Goog-Api-Key",
			authValue:  "test-key",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			server := mock.NewMockServer()
			defer server.Close()
			server.SetResponse(tt.path, mock.MockResponse{Body: tt.body})

			c := newClient(t, tt.dialect, server.URL())
			resp, err := c.Call(context.Background(), mock.TestRequest(tt.model, "Hi"))
			mock.AssertNoError(t, err)

			if resp.Content != "Hello!" {
				t.Errorf("Content = %q, want Hello!", resp.Content)
			}
			if resp.FinishReason != canonical.FinishStop {
				t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
			}
			if resp.Provider != c.Name() {
				t.Errorf("Provider = %q, want %q", resp.Provider, c.Name())
			}
			if resp.Usage == nil || resp.Usage.PromptTokens != 10 || resp.Usage.CompletionTokens != 20 {
				t.Errorf("Usage = %+v, want 10/20", resp.Usage)
			}

			got, ok := server.LastRequest()
			if !ok {
				t.Fatal("no request recorded")
			}
			if got.Method != http.MethodPost {
				t.Errorf("Method = %s, want POST", got.Method)
			}
			if v := got.Header.Get(tt.authHeader); v != tt.authValue {
				t.Errorf("%s = %q, want %q", tt.authHeader, v, tt.authValue)
			}
			if tt.dialect == canonical.DialectAnthropic && got.Header.Get("anthropic-version") != anthropic.APIVersion {
				t.Errorf("anthropic-version = %q", got.Header.Get("anthropic-version"))
			}

			var sent map[string]any
			if err := json.Unmarshal(got.Body, &sent); err != nil {
				t.Fatalf("upstream body is not JSON: %v", err)
			}
			if stream, _ := sent["stream"].(bool); stream {
				t.Error("Call() sent stream=true")
			}
		})
	}
}

func TestClient_CallCompletionEndpoint(t *testing.T) {
	server := mock.NewMockServer()
	defer server.Close()
	server.SetResponse("/completions", mock.MockResponse{Body: map[string]any{
		"id":      "cmpl-1",
		"object":  "text_completion",
		"model":   "gpt-3.5-turbo-instruct",
		"choices": []map[string]any{{"index": 0, "text": "done", "finish_reason": "length"}},
	}})

	c := newClient(t, canonical.DialectOpenAI, server.URL())
	req := mock.TestRequest("gpt-3.5-turbo-instruct", "Say")
	req.Kind = canonical.KindCompletion

	resp, err := c.Call(context.Background(), req)
	mock.AssertNoError(t, err)
	if resp.Content != "done" || resp.FinishReason != canonical.FinishLength {
		t.Errorf("resp = %+v", resp)
	}
}

func TestClient_CallErrors(t *testing.T) {
	t.Run("non-2xx is a transport error", func(t *testing.T) {
		server := mock.NewMockServer()
		defer server.Close()
		server.SetResponse("/chat/completions", mock.MockRateLimitError(3))

		c := newClient(t, canonical.DialectOpenAI, server.URL())
		_, err := c.Call(context.Background(), mock.TestRequest("gpt-4", "Hi"))
		te := mock.AssertTransportError(t, err, http.StatusTooManyRequests)
		if te.RetryAfter != 3*time.Second {
			t.Errorf("RetryAfter = %v, want 3s", te.RetryAfter)
		}
		if server.GetRequestCount() != 1 {
			t.Errorf("requests = %d, want 1", server.GetRequestCount())
		}
	})

	t.Run("undecodable body is a protocol error", func(t *testing.T) {
		server := mock.NewMockServer()
		defer server.Close()
		server.SetResponse("/messages", mock.MockResponse{Body: "<html>gateway</html>"})

		c := newClient(t, canonical.DialectAnthropic, server.URL())
		_, err := c.Call(context.Background(), mock.TestRequest("claude-3", "Hi"))
		mock.AssertProtocolError(t, err)
	})

	t.Run("embedded error envelope is a protocol error", func(t *testing.T) {
		server := mock.NewMockServer()
		defer server.Close()
		server.SetResponse("/chat/completions", mock.MockResponse{Body: map[string]any{
			"error": map[string]any{"message": "overloaded", "type": "server_error"},
		}})

		c := newClient(t, canonical.DialectOpenAI, server.URL())
		_, err := c.Call(context.Background(), mock.TestRequest("gpt-4", "Hi"))
		mock.AssertProtocolError(t, err)
	})

	t.Run("total deadline", func(t *testing.T) {
		server := mock.NewMockServer()
		defer server.Close()
		server.SetResponse("/chat/completions", mock.MockResponse{Delay: time.Second})

		cfg := mock.TestConfig("slow", canonical.DialectOpenAI, server.URL())
		cfg.Timeout = 50 * time.Millisecond
		c, err := New(cfg, openai.New())
		mock.AssertNoError(t, err)
		defer c.Close()

		_, err = c.Call(context.Background(), mock.TestRequest("gpt-4", "Hi"))
		if !providers.IsTimeout(err) {
			t.Errorf("Call() error = %v, want timeout", err)
		}
	})
}

func TestClient_Stream(t *testing.T) {
	tests := []struct {
		dialect canonical.Dialect
		model   string
		path    string
		frames  []string
	}{
		{canonical.DialectOpenAI, "gpt-4", "/chat/completions", mock.OpenAIStreamFrames("Hello", " world")},
		{canonical.DialectAnthropic, "claude-3", "/messages", mock.AnthropicStreamFrames("Hello", " world")},
		{canonical.DialectGemini, "gemini-pro", "/models/gemini-pro:streamGenerateContent", mock.GeminiStreamFrames("Hello", " world")},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			server := mock.NewMockServer()
			defer server.Close()
			server.SetResponse(tt.path, mock.MockResponse{StreamFrames: tt.frames})

			c := newClient(t, tt.dialect, server.URL())
			ch, err := c.Stream(context.Background(), mock.TestRequest(tt.model, "Hi"))
			mock.AssertNoError(t, err)

			chunks := mock.CollectStream(t, ch, 2*time.Second)
			if len(chunks) != 3 {
				t.Fatalf("got %d chunks, want 3", len(chunks))
			}
			if chunks[0].Delta != "Hello" || chunks[1].Delta != " world" {
				t.Errorf("deltas = %q, %q", chunks[0].Delta, chunks[1].Delta)
			}
			last := chunks[2]
			if last.Err != nil || last.FinishReason != canonical.FinishStop {
				t.Errorf("terminal chunk = %+v", last)
			}

			got, _ := server.LastRequest()
			if got.Header.Get("Accept") != dialect.ContentTypeSSE {
				t.Errorf("Accept = %q", got.Header.Get("Accept"))
			}
			if tt.dialect == canonical.DialectGemini && got.Query != "alt=sse" {
				t.Errorf("Query = %q, want alt=sse", got.Query)
			}
		})
	}
}

func TestClient_StreamTruncated(t *testing.T) {
	server := mock.NewMockServer()
	defer server.Close()
	frames := mock.OpenAIStreamFrames("Hello")
	server.SetResponse("/chat/completions", mock.MockResponse{StreamFrames: frames[:1]})

	c := newClient(t, canonical.DialectOpenAI, server.URL())
	ch, err := c.Stream(context.Background(), mock.TestRequest("gpt-4", "Hi"))
	mock.AssertNoError(t, err)

	chunks := mock.CollectStream(t, ch, 2*time.Second)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Delta != "Hello" {
		t.Errorf("first delta = %q", chunks[0].Delta)
	}
	mock.AssertTransportError(t, chunks[1].Err, 0)
}

func TestClient_StreamStatusError(t *testing.T) {
	server := mock.NewMockServer()
	defer server.Close()
	server.SetResponse("/messages", mock.MockServerError())

	c := newClient(t, canonical.DialectAnthropic, server.URL())
	_, err := c.Stream(context.Background(), mock.TestRequest("claude-3", "Hi"))
	mock.AssertTransportError(t, err, http.StatusInternalServerError)
}

func TestClient_StreamCancel(t *testing.T) {
	server := mock.NewMockServer()
	defer server.Close()
	server.SetResponse("/chat/completions", mock.MockResponse{
		StreamFrames: mock.OpenAIStreamFrames("Hello")[:1],
		Hang:         true,
	})

	c := newClient(t, canonical.DialectOpenAI, server.URL())
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Stream(ctx, mock.TestRequest("gpt-4", "Hi"))
	mock.AssertNoError(t, err)

	first := <-ch
	if first == nil || first.Delta != "Hello" {
		t.Fatalf("first chunk = %+v", first)
	}
	cancel()

	// the pump must close the channel once the context is gone
	mock.CollectStream(t, ch, 2*time.Second)
}

func TestClient_HealthCheck(t *testing.T) {
	t.Run("models listing", func(t *testing.T) {
		server := mock.NewMockServer()
		defer server.Close()
		server.SetResponse("/models", mock.MockResponse{Body: map[string]any{"data": []any{}}})

		c := newClient(t, canonical.DialectOpenAI, server.URL())
		mock.AssertNoError(t, c.HealthCheck(context.Background()))

		got, _ := server.LastRequest()
		if got.Method != http.MethodGet {
			t.Errorf("Method = %s, want GET", got.Method)
		}
	})

	t.Run("probe model", func(t *testing.T) {
		server := mock.NewMockServer()
		defer server.Close()
		server.SetResponse("/messages", mock.MockResponse{Body: mock.MockAnthropicResponse("p", "claude-3")})

		cfg := mock.TestConfig("probe", canonical.DialectAnthropic, server.URL())
		cfg.ProbeModel = "claude-3"
		c, err := New(cfg, anthropic.New())
		mock.AssertNoError(t, err)
		defer c.Close()

		mock.AssertNoError(t, c.HealthCheck(context.Background()))

		got, _ := server.LastRequest()
		if !strings.Contains(string(got.Body), `"max_tokens":1`) {
			t.Errorf("probe body = %s, want max_tokens 1", got.Body)
		}
	})

	t.Run("failure", func(t *testing.T) {
		server := mock.NewMockServer()
		defer server.Close()
		server.SetResponse("/models", mock.MockAuthError())

		c := newClient(t, canonical.DialectGemini, server.URL())
		err := c.HealthCheck(context.Background())
		te := mock.AssertTransportError(t, err, http.StatusUnauthorized)
		if !te.IsAuth() {
			t.Error("IsAuth() = false")
		}
	})
}

func TestClient_ValidateRequest(t *testing.T) {
	systemOnly := &canonical.Request{
		Model:    "m",
		Kind:     canonical.KindChat,
		Messages: []canonical.Message{{Role: canonical.RoleSystem, Content: "Be brief."}},
	}

	tests := []struct {
		dialect canonical.Dialect
		field   string
	}{
		{canonical.DialectOpenAI, ""},
		{canonical.DialectAnthropic, "messages"},
		{canonical.DialectGemini, "contents"},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			server := mock.NewMockServer()
			defer server.Close()
			c := newClient(t, tt.dialect, server.URL())

			if err := c.ValidateRequest(mock.TestRequest("m", "Hi")); err != nil {
				t.Errorf("ValidateRequest(chat) error = %v", err)
			}

			err := c.ValidateRequest(systemOnly)
			if tt.field == "" {
				if err != nil {
					t.Errorf("ValidateRequest(system only) error = %v", err)
				}
				return
			}
			var verr *dialect.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("ValidateRequest(system only) error = %v, want ValidationError on %s", err, tt.field)
			}
			if server.GetRequestCount() != 0 {
				t.Error("validation must not reach the upstream")
			}
		})
	}
}
