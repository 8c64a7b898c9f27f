package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/routing"
)

var (
	// ErrGatewayExhausted is matched by every GatewayExhaustedError.
	ErrGatewayExhausted = errors.New("all providers failed")

	// ErrProviderUnavailable is recorded for a provider that was not
	// called because it is unhealthy or disabled.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrStreamInterrupted is matched by every StreamInterruptedError.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrIllegalTransition is returned for a state change the lifecycle
	// does not allow.
	ErrIllegalTransition = errors.New("illegal state transition")
)

// GatewayExhaustedError is returned when no candidate produced a response.
// It carries every attempt in chain order.
type GatewayExhaustedError struct {
	Model    string
	Attempts []routing.Attempt

	// Errs holds the error of each attempt, aligned with Attempts.
	Errs []error
}

// Error implements the error interface.
func (e *GatewayExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", a.Provider, a.Outcome, a.Error))
	}
	return fmt.Sprintf("all %d provider attempts failed for model %q: %s",
		len(e.Attempts), e.Model, strings.Join(parts, "; "))
}

// Is implements error matching for errors.Is().
func (e *GatewayExhaustedError) Is(target error) bool {
	return target == ErrGatewayExhausted
}

// Unwrap returns the attempt errors.
func (e *GatewayExhaustedError) Unwrap() []error {
	return e.Errs
}

// StatusCode maps the failure to the gateway's HTTP status: 503 when no
// provider could be called, 504 when every call timed out, 502 otherwise.
func (e *GatewayExhaustedError) StatusCode() int {
	called, timeouts := 0, 0
	for _, a := range e.Attempts {
		if a.Outcome == routing.OutcomeSkipped {
			continue
		}
		called++
		if a.Timeout {
			timeouts++
		}
	}
	switch {
	case called == 0:
		return http.StatusServiceUnavailable
	case timeouts == called:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// ProviderUnavailableError explains why a provider was skipped.
type ProviderUnavailableError struct {
	Provider string
	Reason   string

	// Rejected is set when the adapter refused the request itself, for
	// example a body its upstream dialect cannot express. It is not
	// unwrapped, so a rejection never masks the chain's other failures.
	Rejected *dialect.ValidationError
}

// Error implements the error interface.
func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %q unavailable: %s", e.Provider, e.Reason)
}

// Is implements error matching for errors.Is().
func (e *ProviderUnavailableError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

// StreamInterruptedError ends a stream that failed after its first chunk.
// It is delivered as the Err of the terminal chunk.
type StreamInterruptedError struct {
	Provider string

	// Chunks is the number of chunks delivered before the failure.
	Chunks int

	Cause error
}

// Error implements the error interface.
func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream from provider %q interrupted after %d chunks: %v", e.Provider, e.Chunks, e.Cause)
}

// Is implements error matching for errors.Is().
func (e *StreamInterruptedError) Is(target error) bool {
	return target == ErrStreamInterrupted
}

// Unwrap returns the underlying failure.
func (e *StreamInterruptedError) Unwrap() error {
	return e.Cause
}

// TransitionError reports an illegal lifecycle transition.
type TransitionError struct {
	From routing.State
	To   routing.State
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}

// Is implements error matching for errors.Is().
func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
