package session

import (
	"errors"
	"fmt"
	"strings"

	"bank-dashboard/pkg/resilience"
)

var (
	// ErrNotFound is returned when a key holds no value.
	ErrNotFound = errors.New("session: key not found")

	// ErrInvalidKey is returned for empty, oversized or control-character keys.
	ErrInvalidKey = errors.New("session: invalid key")

	// ErrInvalidValue is returned when a value cannot be encoded or decoded.
	ErrInvalidValue = errors.New("session: invalid value")

	// ErrLayerUnavailable is returned when a layer cannot serve requests.
	ErrLayerUnavailable = errors.New("session: layer unavailable")
)

// IsNotFound reports whether err means the key holds no value.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err means a layer could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrLayerUnavailable) ||
		errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, resilience.ErrTimeout)
}

// ClassifyError returns a short label for metrics and logs.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_breaker_open"
	case errors.Is(err, resilience.ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "key_not_found"
	case errors.Is(err, ErrLayerUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection", "connect", "dial"):
		return "connection"
	case containsAny(msg, "marshal", "unmarshal", "encode", "decode"):
		return "serialization"
	case containsAny(msg, "redis"):
		return "backend"
	default:
		return "other"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// WrapError adds the layer and operation to err.
func WrapError(err error, layer, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("session layer %s %s: %w", layer, operation, err)
}
