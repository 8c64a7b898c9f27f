package health

import (
	"context"
	"fmt"

	"mercator-hq/prism/pkg/registry"
)

// ProvidersCheck passes when at least minHealthy enabled providers are not
// unhealthy. Providers that have never been probed count as available.
func ProvidersCheck(r *registry.Registry, minHealthy int) CheckFunc {
	return func(ctx context.Context) error {
		if minHealthy <= 0 {
			return nil
		}
		available := 0
		for _, s := range r.Snapshots() {
			if s.Enabled && s.Status != registry.StatusUnhealthy {
				available++
			}
		}
		if available < minHealthy {
			return fmt.Errorf("%d of %d required providers available", available, minHealthy)
		}
		return nil
	}
}

// ProviderSummary maps each enabled provider to its health status.
func ProviderSummary(r *registry.Registry) SummaryFunc {
	return func() map[string]string {
		out := make(map[string]string)
		for _, s := range r.Snapshots() {
			status := string(s.Status)
			if !s.Enabled {
				status = "disabled"
			}
			out[s.ID()] = status
		}
		return out
	}
}
