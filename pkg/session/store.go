package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 24 * time.Hour

// Store keeps per-session records on top of a Layer. Every write
// refreshes the record's TTL, so active sessions do not expire.
type Store struct {
	layer Layer
	ttl   time.Duration
}

// NewStore creates a store over layer. A non-positive ttl uses DefaultTTL.
func NewStore(layer Layer, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{layer: layer, ttl: ttl}
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like an id produced by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// TTL returns the record lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Credential returns the bearer credential held by session id, or
// ErrNotFound.
func (s *Store) Credential(ctx context.Context, id string) (string, error) {
	raw, err := s.get(ctx, id, CredentialSlot)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", ErrNotFound
	}
	return string(raw), nil
}

// SetCredential stores the bearer credential for session id.
func (s *Store) SetCredential(ctx context.Context, id, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty credential", ErrInvalidValue)
	}
	return s.set(ctx, id, CredentialSlot, []byte(token))
}

// Load decodes the JSON record in slot of session id into v.
func (s *Store) Load(ctx context.Context, id, slot string, v any) error {
	raw, err := s.get(ctx, id, slot)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidValue, slot, err)
	}
	return nil
}

// Save encodes v as JSON into slot of session id.
func (s *Store) Save(ctx context.Context, id, slot string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrInvalidValue, slot, err)
	}
	return s.set(ctx, id, slot, raw)
}

// Drop deletes the credential and the given slots of session id.
// Every slot is attempted; the errors are joined.
func (s *Store) Drop(ctx context.Context, id string, slots ...string) error {
	var errs []error
	for _, slot := range append([]string{CredentialSlot}, slots...) {
		if err := s.layer.Delete(ctx, Sessions.Build(id, slot)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes the underlying layer.
func (s *Store) Close() error {
	return s.layer.Close()
}

func (s *Store) get(ctx context.Context, id, slot string) ([]byte, error) {
	key := Sessions.Build(id, slot)
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return s.layer.Get(ctx, key)
}

func (s *Store) set(ctx context.Context, id, slot string, value []byte) error {
	key := Sessions.Build(id, slot)
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.layer.Set(ctx, key, value, s.ttl)
}
