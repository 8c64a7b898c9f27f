package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/proxy"
	"mercator-hq/prism/pkg/registry"
)

// ProviderRequest is the body of POST /providers. Durations use Go
// duration syntax ("30s").
type ProviderRequest struct {
	ID             string            `json:"id"`
	Kind           string            `json:"kind,omitempty"`
	Dialect        string            `json:"dialect,omitempty"`
	BaseURL        string            `json:"base_url,omitempty"`
	APIKey         string            `json:"api_key,omitempty"`
	Models         []string          `json:"models,omitempty"`
	Weight         int               `json:"weight,omitempty"`
	Timeout        string            `json:"timeout,omitempty"`
	ConnectTimeout string            `json:"connect_timeout,omitempty"`
	ChunkTimeout   string            `json:"chunk_timeout,omitempty"`
	ProbeModel     string            `json:"probe_model,omitempty"`
	Client         string            `json:"client,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// Descriptor converts the request into a registry descriptor.
func (p ProviderRequest) Descriptor() (registry.Descriptor, error) {
	d := registry.Descriptor{
		ID:         strings.TrimSpace(p.ID),
		Kind:       providers.Kind(strings.ToLower(p.Kind)),
		Dialect:    canonical.Dialect(strings.ToLower(p.Dialect)),
		BaseURL:    p.BaseURL,
		APIKey:     p.APIKey,
		Models:     p.Models,
		Weight:     p.Weight,
		ProbeModel: p.ProbeModel,
		Client:     p.Client,
		Headers:    p.Headers,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", p.Timeout, &d.Timeout},
		{"connect_timeout", p.ConnectTimeout, &d.ConnectTimeout},
		{"chunk_timeout", p.ChunkTimeout, &d.ChunkTimeout},
	} {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil || v < 0 {
			return d, &registry.DescriptorError{ID: d.ID, Field: f.name, Message: fmt.Sprintf("invalid duration %q", f.raw)}
		}
		*f.dst = v
	}
	return d, nil
}

// ProviderView is the management representation of a registry entry.
// Secrets are masked.
type ProviderView struct {
	ID                  string            `json:"id"`
	Kind                providers.Kind    `json:"kind"`
	Dialect             canonical.Dialect `json:"dialect,omitempty"`
	BaseURL             string            `json:"base_url,omitempty"`
	APIKey              string            `json:"api_key,omitempty"`
	Models              []string          `json:"models,omitempty"`
	Weight              int               `json:"weight"`
	Timeout             string            `json:"timeout,omitempty"`
	ChunkTimeout        string            `json:"chunk_timeout,omitempty"`
	Client              string            `json:"client,omitempty"`
	Enabled             bool              `json:"enabled"`
	Status              registry.Status   `json:"status"`
	LatencyMS           *float64          `json:"latency_ewma_ms,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	TotalErrors         int64             `json:"total_errors"`
	TotalSuccesses      int64             `json:"total_successes"`
	InFlight            int64             `json:"in_flight"`
	LastCheck           *time.Time        `json:"last_check,omitempty"`
	LastError           string            `json:"last_error,omitempty"`
}

// NewProviderView builds the view of one snapshot.
func NewProviderView(s registry.Snapshot) ProviderView {
	d := s.Descriptor.Redacted()
	v := ProviderView{
		ID:                  d.ID,
		Kind:                d.Kind,
		Dialect:             d.Dialect,
		BaseURL:             d.BaseURL,
		APIKey:              d.APIKey,
		Models:              d.Models,
		Weight:              d.EffectiveWeight(),
		Client:              d.Client,
		Enabled:             s.Enabled,
		Status:              s.Status,
		ConsecutiveFailures: s.ConsecutiveFailures,
		TotalErrors:         s.TotalErrors,
		TotalSuccesses:      s.TotalSuccesses,
		InFlight:            s.InFlight,
		LastError:           s.LastError,
	}
	if d.Timeout > 0 {
		v.Timeout = d.Timeout.String()
	}
	if d.ChunkTimeout > 0 {
		v.ChunkTimeout = d.ChunkTimeout.String()
	}
	if s.Measured {
		ms := s.LatencyMS
		v.LatencyMS = &ms
	}
	if !s.LastCheck.IsZero() {
		t := s.LastCheck
		v.LastCheck = &t
	}
	return v
}

// Management serves the provider management endpoints:
//
//	GET    /providers
//	GET    /providers/{id}
//	POST   /providers
//	DELETE /providers/{id}
type Management struct {
	registry *registry.Registry
	build    registry.Builder
	infer    func(registry.Descriptor) registry.Descriptor
	logger   *slog.Logger
}

// NewManagement creates the management handler. build creates adapters for
// registered descriptors; infer, when set, fills in omitted fields first.
func NewManagement(r *registry.Registry, build registry.Builder, infer func(registry.Descriptor) registry.Descriptor) *Management {
	return &Management{
		registry: r,
		build:    build,
		infer:    infer,
		logger:   slog.Default().With("component", "management"),
	}
}

// Register adds the management routes to mux.
func (m *Management) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /providers", m.List)
	mux.HandleFunc("GET /providers/{id}", m.Get)
	mux.HandleFunc("POST /providers", m.Upsert)
	mux.HandleFunc("DELETE /providers/{id}", m.Delete)
}

type listResponse struct {
	Providers []ProviderView `json:"providers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// List returns every provider, enabled or not, in registration order.
func (m *Management) List(w http.ResponseWriter, r *http.Request) {
	snaps := m.registry.Snapshots()
	out := listResponse{Providers: make([]ProviderView, 0, len(snaps))}
	for _, s := range snaps {
		out.Providers = append(out.Providers, NewProviderView(s))
	}
	proxy.WriteJSON(w, http.StatusOK, out)
}

// Get returns one provider.
func (m *Management) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, ok := m.registry.Snapshot(id)
	if !ok {
		proxy.WriteJSON(w, http.StatusNotFound, errorResponse{Error: (&registry.NotFoundError{ID: id}).Error()})
		return
	}
	proxy.WriteJSON(w, http.StatusOK, NewProviderView(s))
}

// Upsert registers a provider, replacing the descriptor and adapter of an
// existing one. It answers 201 for a new provider and 200 for a replaced one.
func (m *Management) Upsert(w http.ResponseWriter, r *http.Request) {
	var req ProviderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		proxy.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid provider JSON: %v", err)})
		return
	}

	d, err := req.Descriptor()
	if err == nil {
		if m.infer != nil {
			d = m.infer(d)
		}
		err = d.Validate()
	}
	if err != nil {
		proxy.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	adapter, err := m.build(d)
	if err != nil {
		status := http.StatusInternalServerError
		var ce *providers.ConfigError
		if errors.As(err, &ce) {
			status = http.StatusBadRequest
		}
		proxy.WriteJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	_, existed := m.registry.Snapshot(d.ID)
	if err := m.registry.Register(d, adapter); err != nil {
		_ = adapter.Close()
		proxy.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	m.logger.InfoContext(r.Context(), "provider registered through management API", "provider", d.ID, "replaced", existed)

	s, _ := m.registry.Snapshot(d.ID)
	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	proxy.WriteJSON(w, status, NewProviderView(s))
}

// Delete deregisters a provider. Its entry and metrics are kept.
func (m *Management) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.registry.Deregister(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			proxy.WriteJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		proxy.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	m.logger.InfoContext(r.Context(), "provider deregistered through management API", "provider", id)
	w.WriteHeader(http.StatusNoContent)
}
