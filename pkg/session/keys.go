package session

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxKeyLength bounds key size across all layers.
const MaxKeyLength = 250

// ValidateKey checks that key is non-empty, at most MaxKeyLength bytes,
// and free of whitespace and control characters.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
		if unicode.IsSpace(r) {
			return fmt.Errorf("%w: key contains whitespace", ErrInvalidKey)
		}
	}

	return nil
}

// KeyPattern builds keys from a prefix and parts joined by a separator.
type KeyPattern struct {
	prefix    string
	separator string
}

// NewKeyPattern creates a pattern. An empty separator defaults to ":".
func NewKeyPattern(prefix, separator string) *KeyPattern {
	if separator == "" {
		separator = ":"
	}
	return &KeyPattern{
		prefix:    prefix,
		separator: separator,
	}
}

// Build joins the prefix and parts: Build("abc", "view") -> "session:abc:view".
func (kp *KeyPattern) Build(parts ...string) string {
	return strings.Join(append([]string{kp.prefix}, parts...), kp.separator)
}

// Sessions is the key layout used by Store.
var Sessions = NewKeyPattern("session", ":")

// CredentialSlot is the fixed slot holding a session's bearer credential.
const CredentialSlot = "accessToken"
