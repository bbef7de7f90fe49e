package resilience

import (
	"time"
)

// Config configures a Breaker.
type Config struct {
	// Timeout bounds each protected call. Zero disables the bound.
	Timeout time.Duration

	// CircuitBreakerConfig configures the circuit breaker behavior
	CircuitBreakerConfig CircuitBreakerConfig
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxRequests is the number of probe calls allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which
	// counts are cleared. Zero never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// ReadyToTrip decides, after a failure, whether to open. Nil trips
	// after 5 consecutive failures.
	ReadyToTrip func(counts Counts) bool

	// IsSuccessful decides whether an error counts against the breaker.
	// Nil counts every non-nil error.
	IsSuccessful func(err error) bool
}

// Counts mirrors the breaker's request counters.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultConfig suits a remote HTTP API: 10s per call, open after half of
// at least ten calls in a minute fail, probe again after 30s.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: FailureRatio(10, 0.5),
		},
	}
}

// FailureRatio trips once at least minRequests were seen and the failure
// share reaches ratio.
func FailureRatio(minRequests uint32, ratio float64) func(Counts) bool {
	return func(counts Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

// ConsecutiveFailures trips after n failures in a row.
func ConsecutiveFailures(n uint32) func(Counts) bool {
	return func(counts Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

// WithTimeout returns a copy with the call timeout replaced.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithCircuitBreakerTimeout returns a copy with the open-state duration replaced.
func (c Config) WithCircuitBreakerTimeout(timeout time.Duration) Config {
	c.CircuitBreakerConfig.Timeout = timeout
	return c
}

// WithIsSuccessful returns a copy with the success classifier replaced.
func (c Config) WithIsSuccessful(fn func(err error) bool) Config {
	c.CircuitBreakerConfig.IsSuccessful = fn
	return c
}
