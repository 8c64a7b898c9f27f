package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/dialect/anthropic"
	"mercator-hq/prism/pkg/providers"
)

// Client is a REST adapter for one upstream.
type Client struct {
	*providers.HTTPProvider
	codec dialect.Codec
	base  string
}

// New creates a REST adapter. The codec must match cfg.Dialect.
func New(cfg providers.Config, codec dialect.Codec) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "base_url", Message: "is required"}
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "base_url", Message: err.Error()}
	}
	if codec == nil || codec.Dialect() != cfg.Dialect {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "dialect", Message: fmt.Sprintf("no codec for dialect %q", cfg.Dialect)}
	}

	return &Client{
		HTTPProvider: providers.NewHTTPProvider(cfg),
		codec:        codec,
		base:         strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Kind implements providers.Provider.
func (c *Client) Kind() providers.Kind {
	return providers.KindREST
}

// ValidateRequest implements providers.RequestValidator by building the
// upstream payload.
func (c *Client) ValidateRequest(req *canonical.Request) error {
	_, err := c.codec.EncodeRequest(req)
	return err
}

// Call implements providers.Provider.
func (c *Client) Call(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Config().Timeout)
	defer cancel()

	call := *req
	call.Stream = false
	body, err := c.codec.EncodeRequest(&call)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.DoRequest(ctx, http.MethodPost, c.endpoint(&call), body, c.headers())
	if err != nil {
		return nil, err
	}
	data, err := c.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	out, err := c.codec.DecodeResponse(data)
	if err != nil {
		return nil, &providers.ProtocolError{
			Provider: c.Name(),
			Message:  "failed to decode response",
			Raw:      truncate(string(data), 512),
			Cause:    err,
		}
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	out.Provider = c.Name()
	return out, nil
}

// Stream implements providers.Provider. It returns once response headers
// arrive; the chunk read deadline is the caller's.
func (c *Client) Stream(ctx context.Context, req *canonical.Request) (<-chan *canonical.Chunk, error) {
	call := *req
	call.Stream = true
	body, err := c.codec.EncodeRequest(&call)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	headers := c.headers()
	headers["Accept"] = dialect.ContentTypeSSE

	resp, err := c.DoRequest(ctx, http.MethodPost, c.endpoint(&call), body, headers)
	if err != nil {
		return nil, err
	}

	return providers.Pump(ctx, c.Name(), c.codec.NewStreamDecoder(resp.Body), resp.Body), nil
}

// HealthCheck implements providers.Provider. With a probe model it sends a
// one-token completion, otherwise it lists models.
func (c *Client) HealthCheck(ctx context.Context) error {
	if model := c.Config().ProbeModel; model != "" {
		_, err := c.Call(ctx, providers.ProbeRequest(model))
		return err
	}

	resp, err := c.DoRequest(ctx, http.MethodGet, c.base+"/models", nil, c.headers())
	if err != nil {
		return err
	}
	_, err = c.ReadBody(resp)
	return err
}

// endpoint returns the URL for req in the upstream's dialect.
func (c *Client) endpoint(req *canonical.Request) string {
	switch c.codec.Dialect() {
	case canonical.DialectAnthropic:
		return c.base + "/messages"
	case canonical.DialectGemini:
		model := url.PathEscape(strings.TrimPrefix(req.Model, "models/"))
		if req.Stream {
			return c.base + "/models/" + model + ":streamGenerateContent?alt=sse"
		}
		return c.base + "/models/" + model + ":generateContent"
	default:
		if req.Kind == canonical.KindCompletion {
			return c.base + "/completions"
		}
		return c.base + "/chat/completions"
	}
}

// headers returns the dialect's auth headers.
func (c *Client) headers() map[string]string {
	h := make(map[string]string, 3)
	key := c.Config().APIKey
	switch c.codec.Dialect() {
	case canonical.DialectAnthropic:
		h["anthropic-version"] = anthropic.APIVersion
		if key != "" {
			h["x-api-key"] = key
		}
	case canonical.DialectGemini:
		if key != "" {
			h["x-goog-api-key"] = key
		}
	default:
		if key != "" {
			h["Authorization"] = "Bearer " + key
		}
	}
	return h
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ providers.Provider = (*Client)(nil)
