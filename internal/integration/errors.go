package integration

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCircuitOpen is returned when the circuit is open and requests are rejected.
	ErrCircuitOpen = errors.New("circuit breaker is open: service unavailable")

	// ErrMountUnavailable means a mount root is missing, not a directory or empty.
	ErrMountUnavailable = errors.New("mount is not available")

	// ErrStorageNotFound is returned when no storage matches a lookup.
	ErrStorageNotFound = errors.New("storage not found")
)

// APIError is a non-2xx response from the remote API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports a 404 response.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsServerError reports a 5xx response.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsNotFound reports whether err wraps a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}
