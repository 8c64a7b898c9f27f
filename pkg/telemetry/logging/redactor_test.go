package logging

import (
	"log/slog"
	"testing"
)

func TestRedactor_RedactString(t *testing.T) {
	r, err := NewRedactor(nil)
	if err != nil {
		t.Fatalf("NewRedactor() error = %v", err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "nothing to hide", "nothing to hide"},
		{"openai key", "key=sk-proj_abcdef123456", "key=sk-***"},
		{"anthropic key", "using sk-ant-api03-xyz", "using sk-ant-***"},
		{"google key", "AIzaSyA1234567890abcdefghijk", "AIza***"},
		{"bearer", "Authorization: Bearer abc.def", "Authorization: Bearer ***"},
		{"query param", "GET /v1beta/models?api_key=secret123&alt=sse", "GET /v1beta/models?api_key=***&alt=sse"},
		{"header", `"x-api-key": "secret123"`, `"x-api-key": "***"`},
		{"password", "password=hunter2", "password: ***"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.in); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r, _ := NewRedactor(nil)

	tests := []struct {
		attr slog.Attr
		want string
	}{
		{slog.String("Authorization", "Bearer abcdefghij"), "Bear***"},
		{slog.String("api_key", "short"), "***"},
		{slog.String("model", "gpt-4o"), "gpt-4o"},
		{slog.Int("attempts", 2), "2"},
	}
	for _, tt := range tests {
		if got := r.RedactAttr(tt.attr).Value.String(); got != tt.want {
			t.Errorf("RedactAttr(%s) = %q, want %q", tt.attr.Key, got, tt.want)
		}
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for key, want := range map[string]bool{
		"api_key":        true,
		"X-Goog-Api-Key": true,
		"refresh_token":  true,
		"client_secret":  true,
		"provider":       false,
		"request_id":     false,
	} {
		if got := isSensitiveKey(key); got != want {
			t.Errorf("isSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestRedactAPIKey(t *testing.T) {
	tests := map[string]string{
		"":                   "",
		"abc":                "***",
		"sk-1234567890abcdef": "sk-1***",
	}
	for in, want := range tests {
		if got := RedactAPIKey(in); got != want {
			t.Errorf("RedactAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSensitiveKey_Counters(t *testing.T) {
	for _, key := range []string{"prompt_tokens", "completion_tokens", "max_tokens"} {
		if isSensitiveKey(key) {
			t.Errorf("isSensitiveKey(%q) = true", key)
		}
	}
}
