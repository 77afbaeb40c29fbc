package graph

import (
	"errors"
	"fmt"
)

// Common errors returned by the Graph client.
var (
	// ErrServerUnavailable is returned when the mail API cannot be reached.
	ErrServerUnavailable = errors.New("mail API unavailable")

	// ErrUnauthorized is returned when the bearer token is rejected.
	ErrUnauthorized = errors.New("unauthorized: invalid or expired bearer token")

	// ErrTimeout is returned when a request times out.
	ErrTimeout = errors.New("request timed out")

	// ErrNoToken is returned when a request is attempted without a token.
	ErrNoToken = errors.New("no bearer token")

	// ErrForeignNextLink is returned when a page link points away from the
	// configured base URL. The bearer token is never sent there.
	ErrForeignNextLink = errors.New("next page link leaves the mail API host")
)

// APIError wraps a failed Graph call with the operation and HTTP status.
type APIError struct {
	Operation  string // e.g. "inbox_unread"
	StatusCode int    // 0 if the request never got a response
	Code       string // Graph error code from the response body, if any
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		if e.Code != "" {
			return fmt.Sprintf("graph: %s failed (HTTP %d %s): %v", e.Operation, e.StatusCode, e.Code, e.Err)
		}
		return fmt.Sprintf("graph: %s failed (HTTP %d): %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("graph: %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new APIError.
func NewAPIError(operation string, statusCode int, err error) *APIError {
	return &APIError{
		Operation:  operation,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IsUnauthorized returns true if the token was rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsTimeout returns true if the request timed out.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsServerUnavailable returns true if the API could not be reached.
func IsServerUnavailable(err error) bool {
	return errors.Is(err, ErrServerUnavailable)
}

// StatusCode extracts the HTTP status from an APIError chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
