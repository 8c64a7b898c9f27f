package registry

import (
	"errors"
	"fmt"

	"mercator-hq/prism/pkg/providers"
)

// Builder creates the adapter for a descriptor.
type Builder func(Descriptor) (providers.Provider, error)

// Sync makes the enabled provider set match descs. New or changed
// descriptors are registered with a freshly built adapter, unchanged ones
// keep their adapter, and enabled providers missing from descs are
// deregistered. A bad descriptor does not stop the others; all failures are
// returned joined.
func (r *Registry) Sync(descs []Descriptor, build Builder) error {
	var errs []error
	wanted := make(map[string]bool, len(descs))

	for _, d := range descs {
		wanted[d.ID] = true

		if s, ok := r.Snapshot(d.ID); ok && s.Enabled && s.Descriptor.Equal(d) {
			continue
		}
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		adapter, err := build(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to build provider %q: %w", d.ID, err))
			continue
		}
		if err := r.Register(d, adapter); err != nil {
			_ = adapter.Close()
			errs = append(errs, err)
		}
	}

	for _, id := range r.IDs() {
		if !wanted[id] {
			if err := r.Deregister(id); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		r.logger.Error("provider sync finished with errors", "failed", len(errs))
	}
	return errors.Join(errs...)
}
