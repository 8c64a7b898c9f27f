package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// maxErrorBody caps how much of a non-2xx body is kept for error messages.
const maxErrorBody = 4 << 10

// HTTPProvider is the base for HTTP-based adapters. It owns a pooled client
// and performs single, unretried requests.
//
// The client has no overall timeout so streams can run as long as chunks
// keep arriving; callers bound non-streaming calls through the context and
// the transport bounds the wait for response headers.
type HTTPProvider struct {
	config Config
	client *http.Client
	closed atomic.Bool
}

// NewHTTPProvider creates a base HTTP provider with connection pooling.
func NewHTTPProvider(config Config) *HTTPProvider {
	config = config.WithDefaults()

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.ConnectTimeout,
		ForceAttemptHTTP2:     true,
	}

	return &HTTPProvider{
		config: config,
		client: &http.Client{Transport: transport},
	}
}

// Name returns the provider id.
func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Config returns the provider configuration with defaults applied.
func (p *HTTPProvider) Config() Config {
	return p.config
}

// DoRequest performs one HTTP request. A 2xx response is returned with its
// body open; anything else is returned as a *TransportError with the body
// drained and closed.
func (p *HTTPProvider) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range p.config.Headers {
		req.Header.Set(key, value)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.DebugContext(ctx, "sending request to provider",
		"provider", p.config.Name,
		"method", method,
		"url", url,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &TransportError{
			Provider: p.config.Name,
			Timeout:  IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded),
			Message:  err.Error(),
			Cause:    err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	return nil, &TransportError{
		Provider:   p.config.Name,
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Message:    strings.TrimSpace(string(errorBody)),
	}
}

// ReadBody reads a successful response body, classifying read failures.
func (p *HTTPProvider) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(p.config.Name, err)
	}
	return data, nil
}

// Close closes idle connections. In-flight requests are not interrupted.
func (p *HTTPProvider) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.client.CloseIdleConnections()
	slog.Debug("provider closed", "provider", p.config.Name)
	return nil
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
