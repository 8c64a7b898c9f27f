package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"mercator-hq/prism/pkg/dialect"
)

func TestTransportError(t *testing.T) {
	t.Run("with status code", func(t *testing.T) {
		err := &TransportError{Provider: "openai", StatusCode: 500, Message: "internal error"}

		expected := `provider "openai" error (status 500): internal error`
		if err.Error() != expected {
			t.Errorf("expected %q, got %q", expected, err.Error())
		}
	})

	t.Run("timeout", func(t *testing.T) {
		err := &TransportError{Provider: "openai", Timeout: true, Message: "deadline exceeded"}

		expected := `provider "openai" timed out: deadline exceeded`
		if err.Error() != expected {
			t.Errorf("expected %q, got %q", expected, err.Error())
		}
		if !IsTimeout(err) {
			t.Error("IsTimeout() = false")
		}
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := &TransportError{Provider: "openai", Message: "dial failed", Cause: cause}

		if !errors.Is(err, cause) {
			t.Error("expected error to wrap cause")
		}
	})
}

func TestProtocolError(t *testing.T) {
	cause := errors.New("unexpected token")
	err := &ProtocolError{Provider: "anthropic", Message: "invalid upstream payload", Cause: cause}

	expected := `provider "anthropic" protocol error: invalid upstream payload: unexpected token`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected error to wrap cause")
	}
}

func TestClassify(t *testing.T) {
	var syntaxErr error
	{
		var v any
		syntaxErr = json.Unmarshal([]byte("{"), &v)
	}

	tests := []struct {
		name         string
		err          error
		wantProtocol bool
		wantTimeout  bool
	}{
		{name: "json syntax", err: fmt.Errorf("failed to decode: %w", syntaxErr), wantProtocol: true},
		{name: "upstream error event", err: &dialect.UpstreamError{Type: "overloaded_error", Message: "busy"}, wantProtocol: true},
		{name: "truncated stream", err: io.ErrUnexpectedEOF},
		{name: "deadline", err: context.DeadlineExceeded, wantTimeout: true},
		{name: "cancelled", err: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("p", tt.err)

			var pe *ProtocolError
			var te *TransportError
			switch {
			case tt.wantProtocol:
				if !errors.As(got, &pe) {
					t.Fatalf("Classify() = %T, want *ProtocolError", got)
				}
			default:
				if !errors.As(got, &te) {
					t.Fatalf("Classify() = %T, want *TransportError", got)
				}
				if te.Timeout != tt.wantTimeout {
					t.Errorf("Timeout = %v, want %v", te.Timeout, tt.wantTimeout)
				}
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}

	already := &TransportError{Provider: "p", StatusCode: 502}
	if Classify("p", already) != error(already) {
		t.Error("Classify() should not re-wrap classified errors")
	}
	if Classify("p", nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}
