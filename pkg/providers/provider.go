package providers

import (
	"context"
	"time"

	"mercator-hq/prism/pkg/canonical"
)

// Kind is the adapter variant.
type Kind string

const (
	KindREST Kind = "rest"
	KindWeb  Kind = "web"
	KindSDK  Kind = "sdk"
)

// ParseKind validates an adapter kind from configuration.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindREST, KindWeb, KindSDK:
		return Kind(s), true
	default:
		return "", false
	}
}

// Provider is the adapter contract every upstream implements.
type Provider interface {
	// Call performs a non-streaming request.
	Call(ctx context.Context, req *canonical.Request) (*canonical.Response, error)

	// Stream starts a streaming request. See the package documentation for
	// the channel contract.
	Stream(ctx context.Context, req *canonical.Request) (<-chan *canonical.Chunk, error)

	// HealthCheck sends a minimal request and reports whether it succeeded.
	HealthCheck(ctx context.Context) error

	// Name returns the provider id.
	Name() string

	// Kind returns the adapter variant.
	Kind() Kind

	// Close releases pooled connections. The provider must not be used after.
	Close() error
}

// RequestValidator is implemented by adapters whose upstream cannot accept
// every canonical request. The dispatcher skips such a provider, without
// penalizing its health, when ValidateRequest fails.
type RequestValidator interface {
	ValidateRequest(req *canonical.Request) error
}

// Config is what an adapter needs to reach its upstream.
type Config struct {
	// Name is the provider id used in logs and errors.
	Name string

	// Dialect is the wire protocol of a rest upstream.
	Dialect canonical.Dialect

	// BaseURL is the API root, e.g. https://api.openai.com/v1, or the
	// ws:// URL of a web bridge.
	BaseURL string

	// APIKey is sent using the dialect's auth header.
	APIKey string

	// Headers are extra headers sent on every request.
	Headers map[string]string

	// Timeout bounds a complete non-streaming call.
	Timeout time.Duration

	// ConnectTimeout bounds the wait for response headers.
	ConnectTimeout time.Duration

	// ProbeModel, when set, makes HealthCheck send a one-token completion
	// instead of listing models.
	ProbeModel string

	// Client is the sdk client name.
	Client string

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 10
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
	return c
}

// ProbeRequest is the minimal request sent by health probes.
func ProbeRequest(model string) *canonical.Request {
	one := 1
	return &canonical.Request{
		Model:    model,
		Kind:     canonical.KindChat,
		Messages: []canonical.Message{{Role: canonical.RoleUser, Content: "ping"}},
		Sampling: canonical.Sampling{MaxTokens: &one},
	}
}
