package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bank-dashboard/pkg/metrics"
	"bank-dashboard/pkg/resilience"
	"bank-dashboard/pkg/session"
	"bank-dashboard/pkg/session/warmup"

	"golang.org/x/sync/singleflight"
)

// Chain reads through session layers ordered fastest first and writes to
// all of them. A hit in a lower layer is copied into the layers above it
// in the background. Chain itself satisfies session.Layer.
type Chain struct {
	layers  []*guardedLayer
	writers []*warmup.Writer
	sf      singleflight.Group
	warmTTL time.Duration
}

// Config tunes a chain. Zero values take defaults.
type Config struct {
	// Resilience holds one config per layer; missing entries use
	// DefaultLayerConfig for the layer's position.
	Resilience []resilience.Config

	// Warmup configures the background writers feeding upper layers.
	Warmup warmup.Config

	// WarmTTL is the TTL of warmed copies (default session.DefaultTTL).
	WarmTTL time.Duration

	Metrics metrics.Collector
}

// DefaultLayerConfig gives the first layer a tight timeout and deeper
// layers a looser one.
func DefaultLayerConfig(index int) resilience.Config {
	config := resilience.DefaultConfig()
	config.CircuitBreakerConfig.ReadyToTrip = resilience.FailureRatio(20, 0.5)
	if index == 0 {
		return config.WithTimeout(100 * time.Millisecond)
	}
	return config.WithTimeout(time.Second)
}

// New creates a chain with default configuration.
func New(layers ...session.Layer) (*Chain, error) {
	return NewWithConfig(Config{}, layers...)
}

// NewWithConfig creates a chain over layers.
func NewWithConfig(config Config, layers ...session.Layer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}

	collector := metrics.OrNoOp(config.Metrics)
	warmTTL := config.WarmTTL
	if warmTTL <= 0 {
		warmTTL = session.DefaultTTL
	}

	c := &Chain{
		layers:  make([]*guardedLayer, len(layers)),
		warmTTL: warmTTL,
	}

	for i, layer := range layers {
		rc := DefaultLayerConfig(i)
		if i < len(config.Resilience) {
			rc = config.Resilience[i]
		}
		c.layers[i] = newGuardedLayer(layer, rc, collector)
	}

	// only layers above the last can be warmed
	c.writers = make([]*warmup.Writer, len(layers)-1)
	for i := range c.writers {
		c.writers[i] = warmup.New(c.layers[i], config.Warmup, collector)
	}

	return c, nil
}

// Get reads key from the first layer that has it. Concurrent Gets for
// the same key share one traversal.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.getWithFallback(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	value := result.([]byte)
	// callers sharing a flight must not share a slice
	return append([]byte(nil), value...), nil
}

func (c *Chain) getWithFallback(ctx context.Context, key string) ([]byte, error) {
	var lastErr error
	allMissed := true

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := layer.Get(ctx, key)
		if err != nil {
			if !session.IsNotFound(err) {
				allMissed = false
			}
			lastErr = err
			continue
		}

		for j := i - 1; j >= 0; j-- {
			_ = c.writers[j].Write(ctx, key, value, c.warmTTL)
		}

		return value, nil
	}

	if allMissed {
		return nil, session.ErrNotFound
	}
	return nil, lastErr
}

// Set writes to every layer; all layers are attempted and the last
// error is returned.
func (c *Chain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var lastErr error

	for _, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Set(ctx, key, value, ttl); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Delete removes key from every layer.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var lastErr error

	for _, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Name lists the layers, e.g. "chain(L1-memory>L2-redis)".
func (c *Chain) Name() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return fmt.Sprintf("chain(%s)", strings.Join(names, ">"))
}

// Len returns the number of layers.
func (c *Chain) Len() int {
	return len(c.layers)
}

// Flush waits for pending warm-up writes.
func (c *Chain) Flush(timeout time.Duration) error {
	for _, w := range c.writers {
		if err := w.Flush(timeout); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the warm-up writers, then closes every layer.
func (c *Chain) Close() error {
	var errs []error

	for _, w := range c.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, layer := range c.layers {
		if err := layer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
