package config

import (
	"slices"
	"strings"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/registry"
)

// Descriptors converts the enabled providers into registry descriptors,
// sorted by id. Routing weight overrides are applied.
func (c *Config) Descriptors() []registry.Descriptor {
	ids := make([]string, 0, len(c.Providers))
	for id, p := range c.Providers {
		if !p.Disabled {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := make([]registry.Descriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.Providers[id].Descriptor(id, c.Routing.Weights[id]))
	}
	return out
}

// Descriptor converts one provider. A positive weight overrides p.Weight.
func (p ProviderConfig) Descriptor(id string, weight int) registry.Descriptor {
	if weight <= 0 {
		weight = p.Weight
	}
	return registry.Descriptor{
		ID:             id,
		Kind:           providers.Kind(strings.ToLower(p.Kind)),
		Dialect:        canonical.Dialect(strings.ToLower(p.Dialect)),
		BaseURL:        p.BaseURL,
		APIKey:         p.APIKey,
		Models:         slices.Clone(p.Models),
		Weight:         weight,
		Timeout:        p.Timeout,
		ConnectTimeout: p.ConnectTimeout,
		ChunkTimeout:   p.ChunkTimeout,
		ProbeModel:     p.ProbeModel,
		Client:         p.Client,
		Headers:        p.Headers,
	}
}
