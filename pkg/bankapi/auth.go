package bankapi

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer credential for a call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same credential.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

// Identity is what the dashboard shows about the signed-in customer.
type Identity struct {
	Name    string
	Subject string
}

// IdentityFromToken reads display claims from a JWT credential without
// verifying it. Signatures and expiry are the upstream API's to check.
// Opaque credentials yield a zero Identity.
func IdentityFromToken(token string) Identity {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}
	}

	var id Identity
	for _, key := range []string{"name", "preferred_username", "given_name"} {
		if v, ok := claims[key].(string); ok && strings.TrimSpace(v) != "" {
			id.Name = strings.TrimSpace(v)
			break
		}
	}
	if sub, err := claims.GetSubject(); err == nil {
		id.Subject = sub
	}
	return id
}

// DisplayName returns the name, the subject, or fallback.
func (i Identity) DisplayName(fallback string) string {
	switch {
	case i.Name != "":
		return i.Name
	case i.Subject != "":
		return i.Subject
	default:
		return fallback
	}
}
