package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"mercator-hq/prism/pkg/dialect"
)

// ErrClosed is returned by a provider used after Close.
var ErrClosed = errors.New("provider is closed")

// TransportError is a failure to get a usable response from the upstream:
// a network error, a timeout or a non-2xx status.
type TransportError struct {
	// Provider is the provider id.
	Provider string

	// StatusCode is the upstream HTTP status, zero for network failures.
	StatusCode int

	// Timeout is set when a deadline expired.
	Timeout bool

	// RetryAfter is the upstream's Retry-After hint, if any.
	RetryAfter time.Duration

	// Message is a short description, or the upstream error body.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	case e.Timeout:
		return fmt.Sprintf("provider %q timed out: %s", e.Provider, e.Message)
	default:
		return fmt.Sprintf("provider %q transport error: %s", e.Provider, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsAuth reports whether the upstream rejected the credentials.
func (e *TransportError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRateLimit reports whether the upstream rate-limited the request.
func (e *TransportError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// ProtocolError is an upstream payload that was received but could not be
// understood: malformed JSON, an unexpected shape or an error event embedded
// in a successful response.
type ProtocolError struct {
	Provider string
	Message  string

	// Raw is a prefix of the offending payload, for logs.
	Raw string

	Cause error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %q protocol error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %q protocol error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// ConfigError reports an invalid adapter configuration.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error for field %q: %s",
		e.Provider, e.Field, e.Message)
}

// IsTimeout reports whether err is a timeout, either a TransportError marked
// as such or a bare deadline error.
func IsTimeout(err error) bool {
	var te *TransportError
	if errors.As(err, &te) && te.Timeout {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Classify wraps an error raised while reading or decoding an upstream
// payload. Decode failures and embedded error events become ProtocolErrors;
// everything else (read failures, truncation, deadlines) is a TransportError.
// Errors that are already classified are returned unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	var pe *ProtocolError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var upstream *dialect.UpstreamError
	var verr *dialect.ValidationError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.As(err, &upstream) || errors.As(err, &verr) {
		return &ProtocolError{Provider: provider, Message: "invalid upstream payload", Cause: err}
	}

	return &TransportError{
		Provider: provider,
		Timeout:  IsTimeout(err),
		Message:  err.Error(),
		Cause:    err,
	}
}
