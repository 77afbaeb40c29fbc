package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSignedIn is returned when no cached account can supply a token
	// and interactive sign-in is not allowed.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrDeclined is returned when the user declines the device code prompt.
	ErrDeclined = errors.New("sign-in declined")

	// ErrExpired is returned when the device code expires before approval.
	ErrExpired = errors.New("device code expired")

	// ErrNoClientID is returned when device sign-in is attempted without an
	// application (client) ID.
	ErrNoClientID = errors.New("no client_id configured")
)

// Error wraps a token acquisition failure.
type Error struct {
	Op  string // "silent", "device_code", "refresh"...
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// IsAuthError reports whether err came from token acquisition.
func IsAuthError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
