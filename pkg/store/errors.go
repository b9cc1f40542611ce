package store

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// NotFound returns the error a store reports for a missing record
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Conflict returns the error a store reports when a write would break a uniqueness rule
func Conflict(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf(format, args...))
}

// Failure wraps a backend error as a retryable persistence failure
func Failure(err error, format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("%s: %v", fmt.Sprintf(format, args...), err))
}

// IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsConflict reports whether err is a uniqueness conflict
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// StatusCode returns the HTTP status of the first status-carrying error in the wrap chain, or
// 0 when there is none
func StatusCode(err error) int {
	var he *httperror.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

// hasStatus walks the wrap chain, so callers may annotate store errors with %w
func hasStatus(err error, status int) bool {
	return StatusCode(err) == status
}
