package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mercator-hq/prism/pkg/audit"
	"mercator-hq/prism/pkg/proxy/handlers"
)

// Client talks to the management API of a running gateway.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the gateway at addr ("host:port" or a URL).
func NewClient(addr string, timeout time.Duration) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx management response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// Providers lists the registry.
func (c *Client) Providers(ctx context.Context) ([]handlers.ProviderView, error) {
	var out struct {
		Providers []handlers.ProviderView `json:"providers"`
	}
	err := c.do(ctx, http.MethodGet, "/providers", nil, &out)
	return out.Providers, err
}

// Register upserts a provider.
func (c *Client) Register(ctx context.Context, req handlers.ProviderRequest) (handlers.ProviderView, error) {
	var out handlers.ProviderView
	err := c.do(ctx, http.MethodPost, "/providers", req, &out)
	return out, err
}

// Deregister disables a provider.
func (c *Client) Deregister(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/providers/"+url.PathEscape(id), nil, nil)
}

// Decisions queries the audit log.
func (c *Client) Decisions(ctx context.Context, q url.Values) ([]*audit.Record, error) {
	var out struct {
		Decisions []*audit.Record `json:"decisions"`
	}
	path := "/decisions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Decisions, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
