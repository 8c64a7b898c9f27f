package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
)

// TestConfig returns a test adapter configuration for a REST upstream.
func TestConfig(name string, d canonical.Dialect, baseURL string) providers.Config {
	return providers.Config{
		Name:                name,
		Dialect:             d,
		BaseURL:             baseURL,
		APIKey:              "test-key",
		Timeout:             5 * time.Second,
		ConnectTimeout:      2 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
	}
}

// TestRequest creates a single-turn chat request.
func TestRequest(model, content string) *canonical.Request {
	maxTokens := 100
	return &canonical.Request{
		Model:    model,
		Kind:     canonical.KindChat,
		Messages: []canonical.Message{{Role: canonical.RoleUser, Content: content}},
		Sampling: canonical.Sampling{MaxTokens: &maxTokens},
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertTransportError fails the test unless err is a *providers.TransportError
// with the given status (zero matches any status).
func AssertTransportError(t *testing.T, err error, status int) *providers.TransportError {
	t.Helper()
	var te *providers.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
	if status != 0 && te.StatusCode != status {
		t.Fatalf("expected status %d, got %d", status, te.StatusCode)
	}
	return te
}

// AssertProtocolError fails the test unless err is a *providers.ProtocolError.
func AssertProtocolError(t *testing.T, err error) {
	t.Helper()
	var pe *providers.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %T: %v", err, err)
	}
}

// CollectStream drains a stream channel, failing the test if it does not
// close within timeout. It returns the chunks in arrival order.
func CollectStream(t *testing.T, chunks <-chan *canonical.Chunk, timeout time.Duration) []*canonical.Chunk {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var collected []*canonical.Chunk
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				return collected
			}
			collected = append(collected, c)
		case <-ctx.Done():
			t.Fatalf("stream did not finish within %s", timeout)
			return collected
		}
	}
}
