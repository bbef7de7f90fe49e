package bankapi

import (
	"errors"
	"fmt"
	"net/http"

	"bank-dashboard/pkg/resilience"
)

var (
	// ErrTransport is returned when the request never got a response.
	ErrTransport = errors.New("bankapi: transport failure")

	// ErrMalformedResponse is returned when a success body cannot be decoded.
	ErrMalformedResponse = errors.New("bankapi: malformed response")

	// ErrUnauthorized is matched by status errors for 401 and 403.
	ErrUnauthorized = errors.New("bankapi: unauthorized")

	// ErrNoCredential is returned when the token source has nothing to send.
	ErrNoCredential = errors.New("bankapi: no credential")

	// ErrUnknownKind is returned for a transfer kind outside the fixed set.
	ErrUnknownKind = errors.New("bankapi: unknown transfer kind")

	ErrTimeout     = resilience.ErrTimeout
	ErrCircuitOpen = resilience.ErrCircuitOpen
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bankapi: %s returned %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 and 403.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Classify returns a short label for an upstream error.
func Classify(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNoCredential):
		return "no_credential"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "other"
	}
}

// Message is the user-facing text for an upstream error.
func Message(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoCredential):
		return "You are not signed in."
	case errors.Is(err, ErrUnauthorized):
		return "Your session is no longer authorized. Sign in again."
	case errors.As(err, &se):
		return fmt.Sprintf("The bank rejected the request (%d %s).", se.StatusCode, http.StatusText(se.StatusCode))
	case errors.Is(err, ErrCircuitOpen):
		return "The bank is unavailable right now. Try again shortly."
	case errors.Is(err, ErrTimeout):
		return "The bank did not answer in time."
	case errors.Is(err, ErrMalformedResponse):
		return "The bank sent a response that could not be read."
	default:
		return "The bank could not be reached."
	}
}
