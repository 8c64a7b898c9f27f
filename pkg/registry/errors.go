package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for an unknown provider id.
var ErrNotFound = errors.New("provider not found")

// NotFoundError names the provider that was looked up.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found", e.ID)
}

// Is implements error matching for errors.Is().
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DescriptorError reports an invalid provider descriptor.
type DescriptorError struct {
	ID      string
	Field   string
	Message string
}

// Error implements the error interface.
func (e *DescriptorError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid provider descriptor: %s %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid provider descriptor %q: %s %s", e.ID, e.Field, e.Message)
}
