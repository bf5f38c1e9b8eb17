package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// InvalidURLError is returned when a subscription URL can't be used to
// connect.
type InvalidURLError struct {
	URL    string
	Reason string
}

func (err InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", err.URL, err.Reason)
}
