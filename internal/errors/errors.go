package errors

import (
	"errors"
	"fmt"
)

// Common error categories for the client core
var (
	// Authentication errors - credentials rejected on login/register, or a
	// refresh token rejected by the backend. A rejected refresh is terminal
	// for the current session.
	ErrAuthentication = errors.New("authentication rejected")

	// Resource errors - the queried resource does not exist yet. Callers treat
	// this as "not provisioned", not as a hard failure.
	ErrNotFound = errors.New("not found")

	// Transport errors - network, timeout, and server-error conditions.
	ErrTransport = errors.New("transport failure")

	// Storage errors - a persisted session blob failed normalization. Never
	// surfaced to the user; the corrupt record is deleted and the client
	// proceeds as logged out.
	ErrCorruptedState = errors.New("corrupted session state")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
