package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds reported by the client. Use errors.Is to classify a returned error.
var (
	ErrAuth       = errors.New("authentication failed")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("incident not found")
	ErrConflict   = errors.New("incident is not in a state accepting this transition")
	ErrNetwork    = errors.New("incident service unreachable")
	ErrServer     = errors.New("incident service error")
)

// APIError describes a non-success response from the incident service.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Kind       error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.StatusCode)
}

// Unwrap returns the error kind so errors.Is matches the sentinels above.
func (e *APIError) Unwrap() error {
	return e.Kind
}

// kindForStatus maps an HTTP status of a failed response to an error kind.
func kindForStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return ErrServer
	}
}

func validationError(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrValidation, fmt.Sprintf(format, args...))
}
