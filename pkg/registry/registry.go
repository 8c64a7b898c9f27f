package registry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/prism/pkg/providers"
)

// Options tunes health accounting.
type Options struct {
	// FailureThreshold is the streak of failures that marks a provider
	// unhealthy. Default 3.
	FailureThreshold int

	// Alpha is the EWMA smoothing factor for latency. Default 0.3.
	Alpha float64

	// Now returns the current time. Default time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = 0.3
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type entry struct {
	mu      sync.Mutex
	desc    Descriptor
	adapter providers.Provider
	enabled bool

	status              Status
	latencyMS           float64
	measured            bool
	consecutiveFailures int
	totalErrors         int64
	totalSuccesses      int64
	lastCheck           time.Time
	lastError           string

	inFlight atomic.Int64
}

func (e *entry) snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Descriptor:          e.desc,
		Enabled:             e.enabled,
		Status:              e.status,
		LatencyMS:           e.latencyMS,
		Measured:            e.measured,
		ConsecutiveFailures: e.consecutiveFailures,
		TotalErrors:         e.totalErrors,
		TotalSuccesses:      e.totalSuccesses,
		InFlight:            e.inFlight.Load(),
		LastCheck:           e.lastCheck,
		LastError:           e.lastError,
	}
}

// Registry is the provider registry. It is safe for concurrent use.
type Registry struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	cursors sync.Map // map[string]*atomic.Uint64
	logger  *slog.Logger
}

// New creates an empty registry.
func New(opts Options) *Registry {
	return &Registry{
		opts:    opts.withDefaults(),
		entries: make(map[string]*entry),
		logger:  slog.Default().With("component", "registry"),
	}
}

// Register adds a provider or replaces the descriptor and adapter of an
// existing one. Health metrics of an existing entry are kept, a disabled
// entry is re-enabled, and a replaced adapter is closed.
func (r *Registry) Register(d Descriptor, adapter providers.Provider) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if adapter == nil {
		return &DescriptorError{ID: d.ID, Field: "adapter", Message: "is required"}
	}

	r.mu.Lock()
	e, ok := r.entries[d.ID]
	if !ok {
		e = &entry{status: StatusUnknown}
		r.entries[d.ID] = e
		r.order = append(r.order, d.ID)
	}
	r.mu.Unlock()

	e.mu.Lock()
	old := e.adapter
	e.desc = d
	e.adapter = adapter
	e.enabled = true
	e.mu.Unlock()

	if old != nil && old != adapter {
		if err := old.Close(); err != nil {
			r.logger.Warn("failed to close replaced adapter", "provider", d.ID, "error", err)
		}
	}

	r.logger.Info("provider registered",
		"provider", d.ID,
		"kind", d.Kind,
		"dialect", d.Dialect,
		"replaced", ok,
	)
	return nil
}

// Deregister disables a provider and closes its adapter. The entry and its
// metrics are kept.
func (r *Registry) Deregister(id string) error {
	e, ok := r.entry(id)
	if !ok {
		return &NotFoundError{ID: id}
	}

	e.mu.Lock()
	wasEnabled := e.enabled
	e.enabled = false
	adapter := e.adapter
	e.mu.Unlock()

	if wasEnabled && adapter != nil {
		if err := adapter.Close(); err != nil {
			r.logger.Warn("failed to close adapter", "provider", id, "error", err)
		}
	}
	r.logger.Info("provider deregistered", "provider", id)
	return nil
}

// Provider returns the adapter of an enabled provider.
func (r *Registry) Provider(id string) (providers.Provider, bool) {
	e, ok := r.entry(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return nil, false
	}
	return e.adapter, true
}

// Snapshot returns the committed state of one provider.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	e, ok := r.entry(id)
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Snapshots returns every provider, enabled or not, in registration order.
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, 0)
	for _, e := range r.ordered() {
		out = append(out, e.snapshot())
	}
	return out
}

// IDs returns the ids of enabled providers in registration order.
func (r *Registry) IDs() []string {
	var ids []string
	for _, s := range r.Snapshots() {
		if s.Enabled {
			ids = append(ids, s.ID())
		}
	}
	return ids
}

// Matching returns the enabled providers that serve model, in registration
// order, regardless of health.
func (r *Registry) Matching(model string) []Snapshot {
	var out []Snapshot
	for _, s := range r.Snapshots() {
		if s.Enabled && s.Descriptor.Supports(model) {
			out = append(out, s)
		}
	}
	return out
}

// EligibleProviders returns the enabled, non-unhealthy providers serving
// model in registration order. If all matching providers are unhealthy the
// full matching set is returned.
func (r *Registry) EligibleProviders(model string) []Snapshot {
	matching := r.Matching(model)

	eligible := make([]Snapshot, 0, len(matching))
	for _, s := range matching {
		if s.Status != StatusUnhealthy {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 && len(matching) > 0 {
		r.logger.Warn("all providers unhealthy, using full set",
			"model", model,
			"providers", len(matching),
		)
		return matching
	}
	return eligible
}

// RecordOutcome applies the result of a real request. Successful requests
// feed the latency EWMA.
func (r *Registry) RecordOutcome(id string, success bool, latency time.Duration, cause error) {
	e, ok := r.entry(id)
	if !ok {
		return
	}

	e.mu.Lock()
	from := e.status
	if success {
		ms := float64(latency) / float64(time.Millisecond)
		if !e.measured {
			e.latencyMS = ms
			e.measured = true
		} else {
			e.latencyMS = r.opts.Alpha*ms + (1-r.opts.Alpha)*e.latencyMS
		}
	}
	r.apply(e, success, cause)
	to := e.status
	e.mu.Unlock()

	r.logTransition(id, from, to, cause)
}

// RecordProbe applies the result of a health probe.
func (r *Registry) RecordProbe(id string, cause error) {
	e, ok := r.entry(id)
	if !ok {
		return
	}

	e.mu.Lock()
	from := e.status
	e.lastCheck = r.opts.Now()
	r.apply(e, cause == nil, cause)
	to := e.status
	e.mu.Unlock()

	r.logTransition(id, from, to, cause)
}

// apply runs the status transition. Caller holds e.mu.
func (r *Registry) apply(e *entry, success bool, cause error) {
	if success {
		e.totalSuccesses++
		e.consecutiveFailures = 0
		e.status = StatusHealthy
		return
	}

	e.totalErrors++
	e.consecutiveFailures++
	if cause != nil {
		e.lastError = cause.Error()
	}
	switch {
	case e.consecutiveFailures >= r.opts.FailureThreshold:
		e.status = StatusUnhealthy
	case e.status != StatusUnhealthy:
		e.status = StatusDegraded
	}
}

func (r *Registry) logTransition(id string, from, to Status, cause error) {
	if from == to {
		return
	}
	if to == StatusUnhealthy {
		r.logger.Warn("provider marked unhealthy", "provider", id, "from", from, "error", cause)
		return
	}
	r.logger.Info("provider status changed", "provider", id, "from", from, "to", to)
}

// Acquire increments the provider's in-flight counter.
func (r *Registry) Acquire(id string) {
	if e, ok := r.entry(id); ok {
		e.inFlight.Add(1)
	}
}

// Release decrements the provider's in-flight counter.
func (r *Registry) Release(id string) {
	e, ok := r.entry(id)
	if !ok {
		return
	}
	for {
		n := e.inFlight.Load()
		if n <= 0 {
			r.logger.Error("in-flight counter released below zero", "provider", id)
			return
		}
		if e.inFlight.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// Next returns the current value of the named cursor and advances it.
// Concurrent callers always get distinct values.
func (r *Registry) Next(key string) uint64 {
	v, _ := r.cursors.LoadOrStore(key, new(atomic.Uint64))
	return v.(*atomic.Uint64).Add(1) - 1
}

// enabledAdapters returns the id and adapter of every enabled provider.
func (r *Registry) enabledAdapters() map[string]providers.Provider {
	out := make(map[string]providers.Provider)
	for _, e := range r.ordered() {
		e.mu.Lock()
		if e.enabled {
			out[e.desc.ID] = e.adapter
		}
		e.mu.Unlock()
	}
	return out
}

// Close closes every enabled adapter.
func (r *Registry) Close() error {
	for id, p := range r.enabledAdapters() {
		if err := p.Close(); err != nil {
			r.logger.Warn("failed to close adapter", "provider", id, "error", err)
		}
	}
	return nil
}

func (r *Registry) entry(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) ordered() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}
