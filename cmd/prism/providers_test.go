package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/prism/internal/routing"
	"mercator-hq/prism/pkg/audit"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/proxy/handlers"
	"mercator-hq/prism/pkg/registry"
)

// newManagementServer serves the management and audit routes over a fresh
// registry and memory store.
func newManagementServer(t *testing.T) (addr string, r *registry.Registry, store *audit.MemoryStore) {
	t.Helper()
	r = registry.New(registry.Options{})
	t.Cleanup(func() { _ = r.Close() })
	build := func(d registry.Descriptor) (providers.Provider, error) {
		return routing.NewFakeProvider(d.ID), nil
	}
	infer := func(d registry.Descriptor) registry.Descriptor {
		if d.Kind == "" {
			d.Kind = providers.KindSDK
		}
		return d
	}
	store = audit.NewMemoryStore()

	mux := http.NewServeMux()
	handlers.NewManagement(r, build, infer).Register(mux)
	handlers.NewDecisions(store).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL, r, store
}

func TestProvidersCommands(t *testing.T) {
	addr, r, _ := newManagementServer(t)

	out, err := execute(t, "providers", "add", "--addr", addr, "--id", "local", "--client", "echo", "--model", "echo-*", "--call-timeout", "20s")
	if err != nil {
		t.Fatalf("add error = %v", err)
	}
	if !strings.Contains(out, "provider local registered") {
		t.Errorf("add output = %q", out)
	}
	s, ok := r.Snapshot("local")
	if !ok || s.Descriptor.Models[0] != "echo-*" || s.Descriptor.Timeout.String() != "20s" {
		t.Fatalf("registered = %+v", s.Descriptor)
	}

	out, err = execute(t, "providers", "--addr", addr)
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, "ID") || !strings.Contains(out, "local") || !strings.Contains(out, "unknown") {
		t.Errorf("list output:\n%s", out)
	}

	out, err = execute(t, "providers", "list", "--addr", addr, "-o", "json")
	if err != nil {
		t.Fatalf("list json error = %v", err)
	}
	var views []handlers.ProviderView
	if err := json.Unmarshal([]byte(out), &views); err != nil || len(views) != 1 || views[0].ID != "local" {
		t.Errorf("json output = %s (%v)", out, err)
	}

	if _, err := execute(t, "providers", "remove", "--addr", addr, "local"); err != nil {
		t.Fatalf("remove error = %v", err)
	}
	if s, _ := r.Snapshot("local"); s.Enabled {
		t.Error("provider still enabled after remove")
	}

	if _, err := execute(t, "providers", "rm", "--addr", addr, "missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("remove missing error = %v", err)
	}
}

func TestProvidersAdd_FromFile(t *testing.T) {
	addr, r, _ := newManagementServer(t)
	t.Setenv("PRISM_PROVIDER_API_KEY", "sk-from-env-0001")

	path := filepath.Join(t.TempDir(), "provider.json")
	if err := os.WriteFile(path, []byte(`{"id":"filed","client":"echo","weight":4}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "providers", "add", "--addr", addr, "-f", path); err != nil {
		t.Fatalf("add -f error = %v", err)
	}
	s, ok := r.Snapshot("filed")
	if !ok || s.Descriptor.Weight != 4 || s.Descriptor.APIKey != "sk-from-env-0001" {
		t.Errorf("registered = %+v", s.Descriptor)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"id":"x","colour":"red"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "providers", "add", "--addr", addr, "-f", bad); err == nil {
		t.Error("unknown descriptor field should fail")
	}
	if _, err := execute(t, "providers", "add", "--addr", addr); err == nil {
		t.Error("missing id should fail")
	}
}
