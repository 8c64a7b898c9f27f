package dialect

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownDialect is returned when neither the path nor the body identify
// a dialect.
var ErrUnknownDialect = errors.New("unable to determine request dialect")

// ValidationError reports a malformed inbound request. It is never retried
// and is rendered as a 400 in the requesting dialect's envelope.
type ValidationError struct {
	// Field is the offending JSON field path, empty for whole-body failures.
	Field string

	// Message describes the problem.
	Message string

	// Code is a machine-readable detail code, "invalid_value" when empty.
	Code string

	// Cause is the underlying decode error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid request: %s", e.Message)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Invalid is shorthand for a field-level ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// MalformedJSON wraps a JSON syntax or type error.
func MalformedJSON(err error) *ValidationError {
	return &ValidationError{Message: "request body is not valid JSON", Code: "invalid_json", Cause: err}
}

// UpstreamError is an error event embedded in an upstream stream or body.
type UpstreamError struct {
	Type    string
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Type == "" {
		return "upstream error: " + e.Message
	}
	return fmt.Sprintf("upstream %s: %s", e.Type, e.Message)
}

// ErrorKind is the dialect-neutral classification of a client-facing error.
type ErrorKind string

const (
	KindInvalidRequest ErrorKind = "invalid_request"
	KindAuthentication ErrorKind = "authentication"
	KindPermission     ErrorKind = "permission"
	KindNotFound       ErrorKind = "not_found"
	KindRateLimit      ErrorKind = "rate_limit"
	KindInternal       ErrorKind = "internal"
	KindUpstream       ErrorKind = "upstream"
	KindUnavailable    ErrorKind = "unavailable"
	KindTimeout        ErrorKind = "timeout"
)

// ErrorInfo is what a codec needs to render an error envelope.
type ErrorInfo struct {
	Kind    ErrorKind
	Message string

	// Status overrides the kind's default HTTP status when non-zero.
	Status int

	// Param names the offending request field, when known.
	Param string

	// Code is a machine-readable detail code such as "provider_unavailable".
	Code string
}

// HTTPStatus returns the status code the envelope is sent with.
func (e ErrorInfo) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// InfoFromValidation converts a ValidationError into renderable form.
func InfoFromValidation(err *ValidationError) ErrorInfo {
	msg := err.Message
	if err.Field != "" {
		msg = err.Field + ": " + err.Message
	}
	code := err.Code
	if code == "" {
		code = "invalid_value"
	}
	return ErrorInfo{
		Kind:    KindInvalidRequest,
		Message: msg,
		Param:   err.Field,
		Code:    code,
	}
}
