package registry

import (
	"strings"
	"time"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
)

// Descriptor is the static description of a provider.
type Descriptor struct {
	// ID is the unique provider id.
	ID string `json:"id"`

	// Kind selects the adapter variant.
	Kind providers.Kind `json:"kind"`

	// Dialect is the wire protocol of a rest provider.
	Dialect canonical.Dialect `json:"dialect,omitempty"`

	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`

	// Models is the set of models served. Empty means any model; an entry
	// ending in "*" matches by prefix.
	Models []string `json:"models,omitempty"`

	// Weight is used by weighted strategies. Values <= 0 count as 1.
	Weight int `json:"weight,omitempty"`

	// Timeout bounds a non-streaming call.
	Timeout time.Duration `json:"timeout,omitempty"`

	// ConnectTimeout bounds the wait for the upstream to accept a request.
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty"`

	// ChunkTimeout bounds the wait for each streamed chunk, including the
	// first.
	ChunkTimeout time.Duration `json:"chunk_timeout,omitempty"`

	ProbeModel string            `json:"probe_model,omitempty"`
	Client     string            `json:"client,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// DefaultChunkTimeout is used when a descriptor sets no chunk timeout.
const DefaultChunkTimeout = 30 * time.Second

// Validate checks the fields every adapter kind needs.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return &DescriptorError{Field: "id", Message: "is required"}
	}
	if _, ok := providers.ParseKind(string(d.Kind)); !ok {
		return &DescriptorError{ID: d.ID, Field: "kind", Message: "must be one of rest, web, sdk"}
	}
	switch d.Kind {
	case providers.KindREST:
		if _, err := canonical.ParseDialect(string(d.Dialect)); err != nil {
			return &DescriptorError{ID: d.ID, Field: "dialect", Message: "must be one of openai, anthropic, gemini"}
		}
		if d.BaseURL == "" {
			return &DescriptorError{ID: d.ID, Field: "base_url", Message: "is required"}
		}
	case providers.KindWeb:
		if d.BaseURL == "" {
			return &DescriptorError{ID: d.ID, Field: "base_url", Message: "is required"}
		}
	case providers.KindSDK:
		if d.Client == "" {
			return &DescriptorError{ID: d.ID, Field: "client", Message: "is required"}
		}
	}
	if d.Timeout < 0 || d.ConnectTimeout < 0 || d.ChunkTimeout < 0 {
		return &DescriptorError{ID: d.ID, Field: "timeout", Message: "must not be negative"}
	}
	return nil
}

// Supports reports whether the provider serves model.
func (d Descriptor) Supports(model string) bool {
	if len(d.Models) == 0 {
		return true
	}
	for _, m := range d.Models {
		if prefix, ok := strings.CutSuffix(m, "*"); ok {
			if strings.HasPrefix(model, prefix) {
				return true
			}
			continue
		}
		if m == model {
			return true
		}
	}
	return false
}

// EffectiveWeight returns Weight, or 1 when unset.
func (d Descriptor) EffectiveWeight() int {
	if d.Weight <= 0 {
		return 1
	}
	return d.Weight
}

// EffectiveChunkTimeout returns ChunkTimeout, or the default when unset.
func (d Descriptor) EffectiveChunkTimeout() time.Duration {
	if d.ChunkTimeout <= 0 {
		return DefaultChunkTimeout
	}
	return d.ChunkTimeout
}

// AdapterConfig returns the configuration handed to the adapter.
func (d Descriptor) AdapterConfig() providers.Config {
	return providers.Config{
		Name:           d.ID,
		Dialect:        d.Dialect,
		BaseURL:        d.BaseURL,
		APIKey:         d.APIKey,
		Headers:        d.Headers,
		Timeout:        d.Timeout,
		ConnectTimeout: d.ConnectTimeout,
		ProbeModel:     d.ProbeModel,
		Client:         d.Client,
	}.WithDefaults()
}

// Redacted returns a copy safe to expose, with the API key masked.
func (d Descriptor) Redacted() Descriptor {
	if d.APIKey != "" {
		d.APIKey = "***"
	}
	if len(d.Headers) > 0 {
		h := make(map[string]string, len(d.Headers))
		for k := range d.Headers {
			h[k] = "***"
		}
		d.Headers = h
	}
	return d
}

// Equal reports whether two descriptors describe the same upstream setup.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.ID != o.ID || d.Kind != o.Kind || d.Dialect != o.Dialect || d.BaseURL != o.BaseURL ||
		d.APIKey != o.APIKey || d.Weight != o.Weight || d.Timeout != o.Timeout ||
		d.ConnectTimeout != o.ConnectTimeout || d.ChunkTimeout != o.ChunkTimeout ||
		d.ProbeModel != o.ProbeModel || d.Client != o.Client {
		return false
	}
	if len(d.Models) != len(o.Models) || len(d.Headers) != len(o.Headers) {
		return false
	}
	for i := range d.Models {
		if d.Models[i] != o.Models[i] {
			return false
		}
	}
	for k, v := range d.Headers {
		if o.Headers[k] != v {
			return false
		}
	}
	return true
}
