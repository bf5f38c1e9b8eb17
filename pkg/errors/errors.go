package errors

import (
	goErrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return goErrors.New(msg)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return goErrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return goErrors.As(err, target)
}

// contextError annotates an error with what the caller was doing when the
// error occurred.
type contextError struct {
	cause   error
	context string
}

// WithContext wraps `err` with a short description of the operation that
// failed. The resulting message has the form "context: cause". A nil error
// stays nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{cause: err, context: context}
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.cause)
}

func (err contextError) Unwrap() error {
	return err.cause
}

// RootCause strips the context added by WithContext and returns the original
// error.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.cause
	}
}

// FriendlyError is an error whose message is meant to be shown to the user
// as-is, without the context chain.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError from a format string.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the message that should be displayed to the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// GetFriendlyMessage returns the user facing message for `err` if any error
// in its chain implements FriendlyMessage.
func GetFriendlyMessage(err error) (string, bool) {
	var friendly interface{ FriendlyMessage() string }
	if As(err, &friendly) {
		return friendly.FriendlyMessage(), true
	}
	return "", false
}
