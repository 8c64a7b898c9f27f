package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mock "mercator-hq/prism/internal/providers"
	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
)

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := providers.Config{
		Name:           "bridge",
		BaseURL:        url,
		APIKey:         "secret",
		Timeout:        2 * time.Second,
		ConnectTimeout: time.Second,
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, url := range []string{"", "ftp://bridge", "://nope"} {
		_, err := New(providers.Config{Name: "b", BaseURL: url})
		var ce *providers.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("New(%q) error = %v, want *ConfigError", url, err)
		}
	}
}

func TestClient_Call(t *testing.T) {
	bridge := mock.NewMockBridge(mock.BridgeReply("Hel", "lo!"))
	defer bridge.Close()

	c := newClient(t, bridge.URL())
	resp, err := c.Call(context.Background(), mock.TestRequest("web-chat", "Hi"))
	mock.AssertNoError(t, err)

	if resp.Content != "Hello!" {
		t.Errorf("Content = %q, want Hello!", resp.Content)
	}
	if resp.FinishReason != canonical.FinishStop {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 5 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.Provider != "bridge" {
		t.Errorf("Provider = %q", resp.Provider)
	}

	prompts := bridge.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(prompts))
	}
	if prompts[0]["type"] != FramePrompt || prompts[0]["model"] != "web-chat" || prompts[0]["stream"] != false {
		t.Errorf("prompt = %v", prompts[0])
	}
	if h := bridge.Headers()[0].Get("Authorization"); h != "Bearer secret" {
		t.Errorf("Authorization = %q", h)
	}
}

func TestClient_CallContentOnDone(t *testing.T) {
	bridge := mock.NewMockBridge(func(map[string]any) []mock.BridgeFrame {
		return []mock.BridgeFrame{{Type: "done", Content: "whole reply", FinishReason: "length"}}
	})
	defer bridge.Close()

	resp, err := newClient(t, bridge.URL()).Call(context.Background(), mock.TestRequest("m", "Hi"))
	mock.AssertNoError(t, err)
	if resp.Content != "whole reply" || resp.FinishReason != canonical.FinishLength {
		t.Errorf("resp = %+v", resp)
	}
}

func TestClient_CallFailures(t *testing.T) {
	t.Run("error frame", func(t *testing.T) {
		bridge := mock.NewMockBridge(func(map[string]any) []mock.BridgeFrame {
			return []mock.BridgeFrame{{Type: "error", Error: "session expired"}}
		})
		defer bridge.Close()

		_, err := newClient(t, bridge.URL()).Call(context.Background(), mock.TestRequest("m", "Hi"))
		mock.AssertProtocolError(t, err)
	})

	t.Run("closed before done", func(t *testing.T) {
		bridge := mock.NewMockBridge(func(map[string]any) []mock.BridgeFrame { return nil })
		defer bridge.Close()

		_, err := newClient(t, bridge.URL()).Call(context.Background(), mock.TestRequest("m", "Hi"))
		mock.AssertTransportError(t, err, 0)
	})

	t.Run("timeout", func(t *testing.T) {
		bridge := mock.NewMockBridge(func(map[string]any) []mock.BridgeFrame {
			return []mock.BridgeFrame{{Hang: true}}
		})
		defer bridge.Close()

		c := newClient(t, bridge.URL())
		c.config.Timeout = 50 * time.Millisecond
		_, err := c.Call(context.Background(), mock.TestRequest("m", "Hi"))
		if !providers.IsTimeout(err) {
			t.Errorf("Call() error = %v, want timeout", err)
		}
	})

	t.Run("handshake rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		_, err := newClient(t, server.URL).Call(context.Background(), mock.TestRequest("m", "Hi"))
		te := mock.AssertTransportError(t, err, http.StatusForbidden)
		if !te.IsAuth() {
			t.Error("IsAuth() = false")
		}
	})
}

func TestClient_Stream(t *testing.T) {
	bridge := mock.NewMockBridge(mock.BridgeReply("Hello", " world"))
	defer bridge.Close()

	c := newClient(t, bridge.URL())
	ch, err := c.Stream(context.Background(), mock.TestRequest("m", "Hi"))
	mock.AssertNoError(t, err)

	chunks := mock.CollectStream(t, ch, 2*time.Second)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[0].Delta != "Hello" || chunks[1].Delta != " world" {
		t.Errorf("deltas = %q, %q", chunks[0].Delta, chunks[1].Delta)
	}
	if chunks[2].FinishReason != canonical.FinishStop || chunks[2].Usage == nil {
		t.Errorf("terminal = %+v", chunks[2])
	}
	if bridge.Prompts()[0]["stream"] != true {
		t.Error("prompt stream flag not set")
	}
}

func TestClient_StreamInterrupted(t *testing.T) {
	bridge := mock.NewMockBridge(func(map[string]any) []mock.BridgeFrame {
		return []mock.BridgeFrame{
			{Type: "delta", Delta: "partial"},
			{Type: "error", Error: "tab crashed"},
		}
	})
	defer bridge.Close()

	ch, err := newClient(t, bridge.URL()).Stream(context.Background(), mock.TestRequest("m", "Hi"))
	mock.AssertNoError(t, err)

	chunks := mock.CollectStream(t, ch, 2*time.Second)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Delta != "partial" {
		t.Errorf("first delta = %q", chunks[0].Delta)
	}
	mock.AssertProtocolError(t, chunks[1].Err)
}

func TestClient_StreamCancel(t *testing.T) {
	bridge := mock.NewMockBridge(func(map[string]any) []mock.BridgeFrame {
		return []mock.BridgeFrame{{Type: "delta", Delta: "a"}, {Hang: true}}
	})
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := newClient(t, bridge.URL()).Stream(ctx, mock.TestRequest("m", "Hi"))
	mock.AssertNoError(t, err)

	if first := <-ch; first == nil || first.Delta != "a" {
		t.Fatalf("first = %+v", first)
	}
	cancel()
	mock.CollectStream(t, ch, 2*time.Second)
}

func TestClient_HealthCheck(t *testing.T) {
	bridge := mock.NewMockBridge(mock.BridgeReply("x"))
	defer bridge.Close()

	c := newClient(t, bridge.URL())
	mock.AssertNoError(t, c.HealthCheck(context.Background()))

	if len(bridge.Prompts()) != 0 {
		t.Error("health check should not send a prompt")
	}

	bridge.Close()
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() against a stopped bridge should fail")
	}
}

func TestClient_Closed(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:1")
	_ = c.Close()
	if _, err := c.Call(context.Background(), mock.TestRequest("m", "Hi")); !errors.Is(err, providers.ErrClosed) {
		t.Errorf("Call() after Close = %v, want ErrClosed", err)
	}
	if c.Kind() != providers.KindWeb {
		t.Errorf("Kind() = %q", c.Kind())
	}
}
