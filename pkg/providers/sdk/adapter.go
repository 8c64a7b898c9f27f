package sdk

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/providers"
)

// Adapter exposes a registered Client as a providers.Provider.
type Adapter struct {
	config providers.Config
	client Client
	closed atomic.Bool
}

// New builds the client named by cfg.Client.
func New(cfg providers.Config) (*Adapter, error) {
	cfg = cfg.WithDefaults()
	if cfg.Client == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "client", Message: "is required"}
	}
	f, ok := lookup(cfg.Client)
	if !ok {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "client", Message: (&FactoryError{Name: cfg.Client}).Error()}
	}
	client, err := f(cfg)
	if err != nil {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "client", Message: err.Error()}
	}
	return NewWithClient(cfg, client), nil
}

// NewWithClient wraps an already constructed client.
func NewWithClient(cfg providers.Config, client Client) *Adapter {
	return &Adapter{config: cfg.WithDefaults(), client: client}
}

// Name implements providers.Provider.
func (a *Adapter) Name() string {
	return a.config.Name
}

// Kind implements providers.Provider.
func (a *Adapter) Kind() providers.Kind {
	return providers.KindSDK
}

// Close implements providers.Provider.
func (a *Adapter) Close() error {
	a.closed.Store(true)
	return nil
}

// Call implements providers.Provider.
func (a *Adapter) Call(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	if a.closed.Load() {
		return nil, providers.ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	var text strings.Builder
	res, err := a.client.Generate(ctx, req, func(delta string) error {
		text.WriteString(delta)
		return ctx.Err()
	})
	if err != nil {
		return nil, a.classify(ctx, err)
	}
	if res == nil {
		res = &Result{}
	}

	return &canonical.Response{
		ID:           res.ID,
		Model:        req.Model,
		Content:      text.String(),
		FinishReason: orStop(res.FinishReason),
		Usage:        res.Usage,
		Created:      time.Now().Unix(),
		Provider:     a.Name(),
	}, nil
}

// Stream implements providers.Provider. It returns once the client has
// produced its first delta or finished, so a client that fails before
// producing anything is reported as a call error.
func (a *Adapter) Stream(ctx context.Context, req *canonical.Request) (<-chan *canonical.Chunk, error) {
	if a.closed.Load() {
		return nil, providers.ErrClosed
	}

	id := dialect.NewID("sdk-")
	out := make(chan *canonical.Chunk)
	started := make(chan error, 1)

	go func() {
		defer close(out)

		var begun bool
		begin := func() {
			if !begun {
				begun = true
				started <- nil
			}
		}

		res, err := a.client.Generate(ctx, req, func(delta string) error {
			begin()
			select {
			case out <- &canonical.Chunk{ID: id, Model: req.Model, Delta: delta}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && !begun {
			started <- err
			return
		}
		begin()

		terminal := &canonical.Chunk{ID: id, Model: req.Model}
		switch {
		case err != nil:
			terminal.Err = a.classify(ctx, err)
		case res == nil:
			terminal.FinishReason = canonical.FinishStop
		default:
			terminal.FinishReason = orStop(res.FinishReason)
			terminal.Usage = res.Usage
		}
		select {
		case out <- terminal:
		case <-ctx.Done():
		}
	}()

	if err := <-started; err != nil {
		return nil, a.classify(ctx, err)
	}
	return out, nil
}

// HealthCheck implements providers.Provider. Clients without a Ping method
// are always healthy.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.closed.Load() {
		return providers.ErrClosed
	}
	hc, ok := a.client.(HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.Ping(ctx); err != nil {
		return a.classify(ctx, err)
	}
	return nil
}

func (a *Adapter) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return providers.Classify(a.Name(), err)
}

func orStop(r canonical.FinishReason) canonical.FinishReason {
	if r == "" {
		return canonical.FinishStop
	}
	return r
}

var _ providers.Provider = (*Adapter)(nil)
