package routing

import (
	"errors"
	"fmt"
	"strings"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrNoProviders is returned when no enabled provider serves the model.
	ErrNoProviders = errors.New("no providers available")

	// ErrProviderNotFound is returned when an explicitly requested provider
	// does not exist or is disabled.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrInvalidStrategy is returned when an unknown routing strategy is configured.
	ErrInvalidStrategy = errors.New("invalid routing strategy")
)

// NoProvidersError is returned when no enabled provider serves the
// requested model.
type NoProvidersError struct {
	// Model is the requested model.
	Model string
}

// Error implements the error interface.
func (e *NoProvidersError) Error() string {
	return fmt.Sprintf("no provider available for model %q", e.Model)
}

// Is implements error matching for errors.Is().
func (e *NoProvidersError) Is(target error) bool {
	return target == ErrNoProviders
}

// ProviderNotFoundError is returned when an explicitly requested provider
// does not exist.
type ProviderNotFoundError struct {
	// ProviderName is the requested provider that was not found.
	ProviderName string

	// AvailableProviders contains the ids of enabled providers.
	AvailableProviders []string
}

// Error implements the error interface.
func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found (available providers: %s)",
		e.ProviderName, strings.Join(e.AvailableProviders, ", "))
}

// Is implements error matching for errors.Is().
func (e *ProviderNotFoundError) Is(target error) bool {
	return target == ErrProviderNotFound
}

// InvalidStrategyError is returned when the configured routing strategy
// is not recognized.
type InvalidStrategyError struct {
	// Strategy is the invalid strategy name.
	Strategy string

	// AvailableStrategies contains the valid strategy names.
	AvailableStrategies []string
}

// Error implements the error interface.
func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("invalid routing strategy %q (available strategies: %s)",
		e.Strategy, strings.Join(e.AvailableStrategies, ", "))
}

// Is implements error matching for errors.Is().
func (e *InvalidStrategyError) Is(target error) bool {
	return target == ErrInvalidStrategy
}
