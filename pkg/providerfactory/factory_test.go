package providerfactory

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/providers/rest"
	"mercator-hq/prism/pkg/providers/sdk"
	"mercator-hq/prism/pkg/providers/web"
	"mercator-hq/prism/pkg/registry"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		desc     registry.Descriptor
		wantKind providers.Kind
		check    func(t *testing.T, p providers.Provider)
	}{
		{
			name: "rest openai",
			desc: registry.Descriptor{
				ID: "openai", Kind: providers.KindREST, Dialect: canonical.DialectOpenAI,
				BaseURL: "https://api.openai.com/v1", APIKey: "test-key",
			},
			wantKind: providers.KindREST,
			check: func(t *testing.T, p providers.Provider) {
				if _, ok := p.(*rest.Client); !ok {
					t.Errorf("got %T, want *rest.Client", p)
				}
			},
		},
		{
			name:     "rest anthropic",
			desc:     registry.Descriptor{ID: "claude", Kind: providers.KindREST, Dialect: canonical.DialectAnthropic, BaseURL: "https://api.anthropic.com/v1"},
			wantKind: providers.KindREST,
		},
		{
			name:     "rest gemini",
			desc:     registry.Descriptor{ID: "g", Kind: providers.KindREST, Dialect: canonical.DialectGemini, BaseURL: "https://generativelanguage.googleapis.com/v1beta"},
			wantKind: providers.KindREST,
		},
		{
			name:     "web",
			desc:     registry.Descriptor{ID: "chat-ui", Kind: providers.KindWeb, BaseURL: "ws://localhost:9000/bridge"},
			wantKind: providers.KindWeb,
			check: func(t *testing.T, p providers.Provider) {
				if _, ok := p.(*web.Client); !ok {
					t.Errorf("got %T, want *web.Client", p)
				}
			},
		},
		{
			name:     "sdk echo",
			desc:     registry.Descriptor{ID: "local", Kind: providers.KindSDK, Client: "echo"},
			wantKind: providers.KindSDK,
			check: func(t *testing.T, p providers.Provider) {
				if _, ok := p.(*sdk.Adapter); !ok {
					t.Errorf("got %T, want *sdk.Adapter", p)
				}
			},
		},
		{
			name:     "inferred web",
			desc:     registry.Descriptor{ID: "bridge", BaseURL: "wss://bridge.local"},
			wantKind: providers.KindWeb,
		},
		{
			name:     "inferred sdk",
			desc:     registry.Descriptor{ID: "e", Client: "echo"},
			wantKind: providers.KindSDK,
		},
		{
			name:     "inferred rest with openai-compatible dialect",
			desc:     registry.Descriptor{ID: "ollama", BaseURL: "http://localhost:11434/v1"},
			wantKind: providers.KindREST,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.desc)
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			defer p.Close()

			if p.Name() != tt.desc.ID {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.desc.ID)
			}
			if p.Kind() != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", p.Kind(), tt.wantKind)
			}
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestNewProvider_Errors(t *testing.T) {
	tests := []struct {
		name string
		desc registry.Descriptor
	}{
		{"unknown kind", registry.Descriptor{ID: "x", Kind: "grpc", BaseURL: "http://x"}},
		{"rest without url", registry.Descriptor{ID: "x", Kind: providers.KindREST, Dialect: canonical.DialectOpenAI}},
		{"unknown sdk client", registry.Descriptor{ID: "x", Kind: providers.KindSDK, Client: "nope"}},
		{"bad web scheme", registry.Descriptor{ID: "x", Kind: providers.KindWeb, BaseURL: "ftp://x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.desc); err == nil {
				t.Error("NewProvider() expected error")
			}
		})
	}
}

func TestInfer(t *testing.T) {
	tests := []struct {
		desc        registry.Descriptor
		wantKind    providers.Kind
		wantDialect canonical.Dialect
	}{
		{registry.Descriptor{ID: "anthropic", BaseURL: "https://api.anthropic.com/v1"}, providers.KindREST, canonical.DialectAnthropic},
		{registry.Descriptor{ID: "gemini", BaseURL: "https://x"}, providers.KindREST, canonical.DialectGemini},
		{registry.Descriptor{ID: "vllm", BaseURL: "http://x"}, providers.KindREST, canonical.DialectOpenAI},
		{registry.Descriptor{ID: "openai", Dialect: canonical.DialectGemini, BaseURL: "http://x"}, providers.KindREST, canonical.DialectGemini},
		{registry.Descriptor{ID: "w", BaseURL: "ws://x"}, providers.KindWeb, ""},
	}
	for _, tt := range tests {
		got := Infer(tt.desc)
		if got.Kind != tt.wantKind || got.Dialect != tt.wantDialect {
			t.Errorf("Infer(%s) = %s/%s, want %s/%s", tt.desc.ID, got.Kind, got.Dialect, tt.wantKind, tt.wantDialect)
		}
	}
}

func TestCodec(t *testing.T) {
	for _, d := range canonical.Dialects {
		c, err := Codec(d)
		if err != nil || c.Dialect() != d {
			t.Errorf("Codec(%s) = %v, %v", d, c, err)
		}
	}
	if _, err := Codec("cohere"); !errors.Is(err, dialect.ErrUnknownDialect) {
		t.Errorf("Codec(cohere) error = %v", err)
	}
}

func TestNewProvider_RegistryBuilder(t *testing.T) {
	r := registry.New(registry.Options{})
	err := r.Sync([]registry.Descriptor{{ID: "echo", Kind: providers.KindSDK, Client: "echo"}}, NewProvider)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	p, ok := r.Provider("echo")
	if !ok {
		t.Fatal("provider not registered")
	}
	resp, err := p.Call(context.Background(), &canonical.Request{
		Model:    "m",
		Messages: []canonical.Message{{Role: canonical.RoleUser, Content: "ping"}},
	})
	if err != nil || resp.Content != "ping" {
		t.Errorf("Call() = %+v, %v", resp, err)
	}
}
