package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is returned when the backend answered with a failure, either through
// the HTTP status or the envelope code.
type Error struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is the envelope code, zero if absent.
	Code int

	// Message is the backend's human-readable message.
	Message string

	// Body is the raw response body.
	Body []byte
}

func (e *Error) Error() string {
	if e.Code != 0 && e.Code != e.StatusCode {
		return fmt.Sprintf("apiclient: %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("apiclient: %d: %s", e.StatusCode, e.Message)
}

// Status returns the effective failure status: the HTTP status when it is
// not 2xx, otherwise the envelope code.
func (e *Error) Status() int {
	if !isSuccess(e.StatusCode) {
		return e.StatusCode
	}
	return e.Code
}

// Unauthorized reports whether the failure is a 401.
func (e *Error) Unauthorized() bool {
	return e.Status() == http.StatusUnauthorized
}

// TransportError is returned when no HTTP response was received at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("apiclient: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsStatus reports whether err is an *Error with the given effective status.
func IsStatus(err error, status int) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Status() == status
}

// Message returns the backend message carried by err if any, else err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := AsError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
