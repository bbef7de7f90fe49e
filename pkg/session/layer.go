package session

import (
	"context"
	"time"
)

// Layer is one storage tier of the session store. Values are opaque
// byte slices; the Store above the layers owns their encoding.
type Layer interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A zero ttl uses the layer default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics (e.g. "L1-memory").
	Name() string

	// Close releases resources held by the layer.
	Close() error
}
