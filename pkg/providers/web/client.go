package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/providers"
)

// maxFrameBytes is the read limit for a single bridge frame.
const maxFrameBytes = 1 << 20

// Client is a web-interface adapter. It opens one WebSocket connection per
// request.
type Client struct {
	config providers.Config
	url    string
	header http.Header
	closed atomic.Bool
}

// New creates a web adapter for the bridge at cfg.BaseURL (ws, wss, http or
// https).
func New(cfg providers.Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if cfg.BaseURL == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "base_url", Message: "is required"}
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "base_url", Message: err.Error()}
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "base_url",
			Message:  fmt.Sprintf("unsupported scheme %q", u.Scheme),
		}
	}

	header := make(http.Header)
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Client{config: cfg, url: cfg.BaseURL, header: header}, nil
}

// Name implements providers.Provider.
func (c *Client) Name() string {
	return c.config.Name
}

// Kind implements providers.Provider.
func (c *Client) Kind() providers.Kind {
	return providers.KindWeb
}

// Close implements providers.Provider. Connections are per request, so this
// only refuses further use.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

// Call implements providers.Provider.
func (c *Client) Call(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	conn, id, err := c.open(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer conn.CloseNow()

	var text strings.Builder
	for {
		ev, err := c.read(ctx, conn)
		if err != nil {
			return nil, err
		}

		switch ev.Type {
		case FrameDelta:
			text.WriteString(ev.Delta)
		case FrameDone:
			content := ev.Content
			if content == "" {
				content = text.String()
			}
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return &canonical.Response{
				ID:           id,
				Model:        req.Model,
				Content:      content,
				FinishReason: finishReason(ev.FinishReason),
				Usage:        ev.Usage,
				Created:      time.Now().Unix(),
				Provider:     c.Name(),
			}, nil
		}
	}
}

// Stream implements providers.Provider. It returns once the prompt frame has
// been written.
func (c *Client) Stream(ctx context.Context, req *canonical.Request) (<-chan *canonical.Chunk, error) {
	conn, id, err := c.open(ctx, req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan *canonical.Chunk)
	go func() {
		defer close(out)
		defer conn.CloseNow()

		for {
			ev, err := c.read(ctx, conn)

			var chunk *canonical.Chunk
			switch {
			case err != nil:
				chunk = &canonical.Chunk{ID: id, Model: req.Model, Err: err}
			case ev.Type == FrameDelta:
				chunk = &canonical.Chunk{ID: id, Model: req.Model, Delta: ev.Delta}
			case ev.Type == FrameDone:
				chunk = &canonical.Chunk{
					ID:           id,
					Model:        req.Model,
					FinishReason: finishReason(ev.FinishReason),
					Usage:        ev.Usage,
				}
			default:
				continue
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Terminal() {
				if chunk.Err == nil {
					_ = conn.Close(websocket.StatusNormalClosure, "")
				}
				return
			}
		}
	}()

	return out, nil
}

// HealthCheck implements providers.Provider by pinging the bridge.
func (c *Client) HealthCheck(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	// pongs are only processed while something reads the connection
	pingCtx := conn.CloseRead(ctx)
	if err := conn.Ping(pingCtx); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return providers.Classify(c.Name(), err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

// open dials the bridge and sends the prompt frame.
func (c *Client) open(ctx context.Context, req *canonical.Request, stream bool) (*websocket.Conn, string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, "", err
	}

	id := dialect.NewID("web-")
	prompt := PromptFrame{
		Type:     FramePrompt,
		ID:       id,
		Model:    req.Model,
		Messages: req.Messages,
		Sampling: req.Sampling,
		Stream:   stream,
	}
	if err := wsjson.Write(ctx, conn, prompt); err != nil {
		conn.CloseNow()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, "", providers.Classify(c.Name(), err)
	}

	slog.DebugContext(ctx, "prompt sent to web bridge",
		"provider", c.Name(),
		"prompt_id", id,
		"stream", stream,
	)
	return conn, id, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.closed.Load() {
		return nil, providers.ErrClosed
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
	if err != nil {
		te := &providers.TransportError{
			Provider: c.Name(),
			Timeout:  providers.IsTimeout(err) || errors.Is(dialCtx.Err(), context.DeadlineExceeded),
			Message:  err.Error(),
			Cause:    err,
		}
		if resp != nil && resp.StatusCode >= 300 {
			te.StatusCode = resp.StatusCode
		}
		return nil, te
	}
	conn.SetReadLimit(maxFrameBytes)
	return conn, nil
}

// read returns the next event frame. Bridge error frames and read failures
// are returned as classified errors.
func (c *Client) read(ctx context.Context, conn *websocket.Conn) (*EventFrame, error) {
	var ev EventFrame
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if websocket.CloseStatus(err) != -1 {
			err = fmt.Errorf("bridge closed the connection before done: %w", err)
		}
		return nil, providers.Classify(c.Name(), err)
	}
	if ev.Type == FrameError {
		return nil, providers.Classify(c.Name(), &dialect.UpstreamError{Type: ev.Code, Message: ev.Error})
	}
	return &ev, nil
}

var _ providers.Provider = (*Client)(nil)
