// Package apierr defines the error taxonomy shared by the folio client stores.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrAuthRequired indicates that an operation needs a session token, either
// because none is present or because the server rejected it with 401.
var ErrAuthRequired = errors.New("authentication required, please log in again")

// ValidationError is returned for input rejected locally before any request.
type ValidationError struct {
	// Field names the offending input (e.g. "content", "emoji").
	Field string
	// Reason is a short human-readable explanation.
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation failed"
	}
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SecurityError indicates a failed anti-forgery check during the OAuth handshake.
type SecurityError struct {
	Reason string
}

func (e *SecurityError) Error() string {
	if e == nil || e.Reason == "" {
		return "security check failed"
	}
	return "security check failed: " + e.Reason
}

// HTTPError is a non-2xx response from the folio API.
type HTTPError struct {
	// Status is the HTTP status code.
	Status int
	// Method and Path identify the request.
	Method string
	Path   string
	// Message is the server-provided error message, if any.
	Message string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.Path, e.Status, msg)
}

// Unwrap maps a 401 onto ErrAuthRequired so errors.Is works across layers.
func (e *HTTPError) Unwrap() error {
	if e != nil && e.Status == http.StatusUnauthorized {
		return ErrAuthRequired
	}
	return nil
}

// NetworkError wraps a transport-level failure (DNS, connection, timeout).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "network error"
	}
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsSecurity reports whether err is a SecurityError.
func IsSecurity(err error) bool {
	var target *SecurityError
	return errors.As(err, &target)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsAuthRequired reports whether err means the session is missing or expired.
func IsAuthRequired(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var target *HTTPError
	if errors.As(err, &target) {
		return target.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}
