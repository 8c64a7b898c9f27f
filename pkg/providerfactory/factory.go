// Package providerfactory builds provider adapters from registry descriptors.
package providerfactory

import (
	"fmt"
	"log/slog"
	"net/url"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/dialect/anthropic"
	"mercator-hq/prism/pkg/dialect/gemini"
	"mercator-hq/prism/pkg/dialect/openai"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/providers/rest"
	"mercator-hq/prism/pkg/providers/sdk"
	"mercator-hq/prism/pkg/providers/web"
	"mercator-hq/prism/pkg/registry"
)

// NewProvider creates the adapter a descriptor asks for. It has the
// registry.Builder signature.
//
// A missing kind is inferred: a client name means sdk, a ws:// or wss://
// base URL means web, anything else rest. A rest descriptor without a
// dialect infers it from the id ("openai", "anthropic", "gemini") and
// otherwise assumes an OpenAI-compatible upstream.
//
// Example:
//
//	d := registry.Descriptor{
//	    ID:      "anthropic",
//	    Kind:    providers.KindREST,
//	    Dialect: canonical.DialectAnthropic,
//	    BaseURL: "https://api.anthropic.com/v1",
//	    APIKey:  "sk-ant-...",
//	}
//	p, err := providerfactory.NewProvider(d)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
func NewProvider(d registry.Descriptor) (providers.Provider, error) {
	d = Infer(d)
	if err := d.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("creating provider",
		"name", d.ID,
		"kind", d.Kind,
		"dialect", d.Dialect,
		"base_url", d.BaseURL,
	)

	var (
		p   providers.Provider
		err error
	)
	cfg := d.AdapterConfig()

	switch d.Kind {
	case providers.KindREST:
		var codec dialect.Codec
		codec, err = Codec(d.Dialect)
		if err == nil {
			p, err = rest.New(cfg, codec)
		}
	case providers.KindWeb:
		p, err = web.New(cfg)
	case providers.KindSDK:
		p, err = sdk.New(cfg)
	default:
		return nil, &providers.ConfigError{
			Provider: d.ID,
			Field:    "kind",
			Message:  fmt.Sprintf("unsupported provider kind: %q (supported: rest, web, sdk)", d.Kind),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", d.ID, err)
	}

	slog.Info("provider created", "name", d.ID, "kind", d.Kind)
	return p, nil
}

// Infer fills in a missing kind and, for rest providers, a missing dialect.
func Infer(d registry.Descriptor) registry.Descriptor {
	if d.Kind == "" {
		switch {
		case d.Client != "":
			d.Kind = providers.KindSDK
		case isWebSocketURL(d.BaseURL):
			d.Kind = providers.KindWeb
		default:
			d.Kind = providers.KindREST
		}
	}
	if d.Kind == providers.KindREST && d.Dialect == "" {
		d.Dialect = inferDialect(d.ID)
	}
	return d
}

// Codec returns the provider-side codec for a dialect.
func Codec(d canonical.Dialect) (dialect.Codec, error) {
	switch d {
	case canonical.DialectOpenAI:
		return openai.New(), nil
	case canonical.DialectAnthropic:
		return anthropic.New(), nil
	case canonical.DialectGemini:
		return gemini.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", dialect.ErrUnknownDialect, d)
	}
}

func inferDialect(id string) canonical.Dialect {
	if d, err := canonical.ParseDialect(id); err == nil {
		return d
	}
	return canonical.DialectOpenAI
}

func isWebSocketURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "ws" || u.Scheme == "wss")
}
