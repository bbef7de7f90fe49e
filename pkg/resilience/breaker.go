package resilience

import (
	"context"
	"errors"
	"time"

	"bank-dashboard/pkg/logging"
	"bank-dashboard/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrCircuitOpen is returned without calling through while the breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker open")

	// ErrTimeout is returned when a call outlives the configured timeout.
	ErrTimeout = errors.New("resilience: operation timeout")
)

// Breaker guards calls to one dependency with a per-call timeout and a
// circuit breaker. It is safe for concurrent use.
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
}

// NewBreaker creates a breaker named name. A nil collector discards metrics.
func NewBreaker(name string, config Config, collector metrics.Collector) *Breaker {
	logger := logging.Global().Named("resilience").Named(name)
	collector = metrics.OrNoOp(collector)

	b := &Breaker{
		name:    name,
		timeout: config.Timeout,
		metrics: collector,
		logger:  logger,
	}

	logger.Info("breaker initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreakerConfig.MaxRequests),
		zap.Duration("circuit_interval", config.CircuitBreakerConfig.Interval),
		zap.Duration("circuit_timeout", config.CircuitBreakerConfig.Timeout),
	)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.CircuitBreakerConfig.MaxRequests,
		Interval:    config.CircuitBreakerConfig.Interval,
		Timeout:     config.CircuitBreakerConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreakerConfig.ReadyToTrip != nil {
				return config.CircuitBreakerConfig.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: config.CircuitBreakerConfig.IsSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			b.metrics.RecordCircuitState(name, toCircuitState(to))
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)

	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State reports the current circuit state.
func (b *Breaker) State() metrics.CircuitState {
	return toCircuitState(b.cb.State())
}

// Do runs fn under the timeout and the circuit breaker. op names the call
// in log entries. Open-circuit rejections surface as ErrCircuitOpen and
// calls cut short by the timeout as ErrTimeout; other errors from fn are
// returned unchanged.
func (b *Breaker) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()

	callCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(callCtx)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("circuit breaker open - request rejected", zap.String("operation", op))
		return ErrCircuitOpen
	}

	// Only our own deadline is a timeout; a caller that went away keeps
	// its context error.
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		b.logger.Warn("operation timeout",
			zap.String("operation", op),
			zap.Duration("timeout", b.timeout),
			zap.Duration("elapsed", time.Since(start)),
		)
		return ErrTimeout
	}

	return err
}

func toCircuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}
