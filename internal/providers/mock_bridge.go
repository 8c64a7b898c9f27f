package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// BridgeFrame is one frame the mock bridge sends back.
type BridgeFrame struct {
	Type         string         `json:"type"`
	ID           string         `json:"id,omitempty"`
	Delta        string         `json:"delta,omitempty"`
	Content      string         `json:"content,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        map[string]int `json:"usage,omitempty"`
	Error        string         `json:"error,omitempty"`

	// Delay is slept before the frame is sent.
	Delay time.Duration `json:"-"`

	// Hang stops the script here and keeps the connection open until the
	// client goes away. The frame itself is not sent.
	Hang bool `json:"-"`
}

// BridgeScript returns the frames to send for a prompt. Returning a nil
// slice closes the connection without a reply.
type BridgeScript func(prompt map[string]any) []BridgeFrame

// MockBridge is a WebSocket web-chat bridge for testing the web adapter.
type MockBridge struct {
	server *httptest.Server
	script BridgeScript

	mu      sync.Mutex
	prompts []map[string]any
	headers []http.Header
}

// NewMockBridge starts a bridge that answers every prompt with script.
func NewMockBridge(script BridgeScript) *MockBridge {
	mb := &MockBridge{script: script}
	mb.server = httptest.NewServer(http.HandlerFunc(mb.handler))
	return mb
}

// URL returns the bridge's ws:// URL.
func (mb *MockBridge) URL() string {
	return "ws" + strings.TrimPrefix(mb.server.URL, "http")
}

// Close stops the bridge.
func (mb *MockBridge) Close() {
	mb.server.CloseClientConnections()
	mb.server.Close()
}

// Prompts returns the prompt frames received so far.
func (mb *MockBridge) Prompts() []map[string]any {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]map[string]any(nil), mb.prompts...)
}

// Headers returns the handshake headers of every connection.
func (mb *MockBridge) Headers() []http.Header {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]http.Header(nil), mb.headers...)
}

func (mb *MockBridge) handler(w http.ResponseWriter, r *http.Request) {
	mb.mu.Lock()
	mb.headers = append(mb.headers, r.Header.Clone())
	mb.mu.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	var prompt map[string]any
	// reading also answers pings, so probes that never send a prompt end here
	if err := wsjson.Read(ctx, conn, &prompt); err != nil {
		return
	}

	mb.mu.Lock()
	mb.prompts = append(mb.prompts, prompt)
	mb.mu.Unlock()

	frames := mb.script(prompt)
	if frames == nil {
		_ = conn.Close(websocket.StatusGoingAway, "no reply")
		return
	}

	id, _ := prompt["id"].(string)
	for _, f := range frames {
		if f.Delay > 0 {
			select {
			case <-time.After(f.Delay):
			case <-ctx.Done():
				return
			}
		}
		if f.Hang {
			<-conn.CloseRead(ctx).Done()
			return
		}
		if f.ID == "" {
			f.ID = id
		}
		if err := wsjson.Write(ctx, conn, f); err != nil {
			return
		}
	}

	// wait for the client's close frame
	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, _, _ = conn.Read(readCtx)
}

// BridgeReply scripts a streamed reply: one delta per piece, then done.
func BridgeReply(pieces ...string) BridgeScript {
	return func(map[string]any) []BridgeFrame {
		frames := make([]BridgeFrame, 0, len(pieces)+1)
		for _, p := range pieces {
			frames = append(frames, BridgeFrame{Type: "delta", Delta: p})
		}
		return append(frames, BridgeFrame{
			Type:         "done",
			FinishReason: "stop",
			Usage:        map[string]int{"prompt_tokens": 3, "completion_tokens": len(pieces), "total_tokens": 3 + len(pieces)},
		})
	}
}
