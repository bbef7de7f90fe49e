package chain

import (
	"context"
	"errors"
	"time"

	"bank-dashboard/pkg/logging"
	"bank-dashboard/pkg/metrics"
	"bank-dashboard/pkg/resilience"
	"bank-dashboard/pkg/session"

	"go.uber.org/zap"
)

// guardedLayer wraps a layer with a breaker and per-operation metrics.
// A miss is a successful call as far as the breaker is concerned.
type guardedLayer struct {
	layer   session.Layer
	breaker *resilience.Breaker
	metrics metrics.Collector
	logger  *logging.Logger
}

func newGuardedLayer(layer session.Layer, config resilience.Config, collector metrics.Collector) *guardedLayer {
	config = config.WithIsSuccessful(func(err error) bool {
		return err == nil || session.IsNotFound(err) || errors.Is(err, session.ErrInvalidKey)
	})

	return &guardedLayer{
		layer:   layer,
		breaker: resilience.NewBreaker("session-"+layer.Name(), config, collector),
		metrics: collector,
		logger:  logging.Global().Named("session").Named(layer.Name()),
	}
}

func (g *guardedLayer) Name() string {
	return g.layer.Name()
}

func (g *guardedLayer) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	var value []byte
	err := g.breaker.Do(ctx, "get", func(ctx context.Context) error {
		var err error
		value, err = g.layer.Get(ctx, key)
		return err
	})

	g.metrics.RecordGet(g.layer.Name(), err == nil, time.Since(start))

	if err != nil {
		if !session.IsNotFound(err) {
			g.logger.Warn("get operation failed",
				zap.String("error_type", session.ClassifyError(err)),
				zap.Error(err),
			)
		}
		return nil, session.WrapError(err, g.layer.Name(), "get")
	}

	return value, nil
}

func (g *guardedLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()

	err := g.breaker.Do(ctx, "set", func(ctx context.Context) error {
		return g.layer.Set(ctx, key, value, ttl)
	})

	g.metrics.RecordSet(g.layer.Name(), err == nil, time.Since(start))

	if err != nil {
		g.logger.Warn("set operation failed",
			zap.String("error_type", session.ClassifyError(err)),
			zap.Duration("ttl", ttl),
			zap.Error(err),
		)
		return session.WrapError(err, g.layer.Name(), "set")
	}

	return nil
}

func (g *guardedLayer) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := g.breaker.Do(ctx, "delete", func(ctx context.Context) error {
		return g.layer.Delete(ctx, key)
	})

	g.metrics.RecordDelete(g.layer.Name(), err == nil, time.Since(start))

	if err != nil {
		g.logger.Warn("delete operation failed",
			zap.String("error_type", session.ClassifyError(err)),
			zap.Error(err),
		)
		return session.WrapError(err, g.layer.Name(), "delete")
	}

	return nil
}

func (g *guardedLayer) Close() error {
	return g.layer.Close()
}
