package metrics

import (
	"time"
)

// Collector receives dashboard measurements. Implementations export them
// to a backend (Prometheus) or keep them for assertions (memory).
type Collector interface {
	// Upstream banking API
	RecordUpstreamCall(endpoint, outcome string, duration time.Duration)
	RecordTransfer(kind, outcome string)

	// Circuit breakers, keyed by breaker name
	RecordCircuitState(name string, state CircuitState)

	// Session store layers
	RecordGet(layer string, hit bool, duration time.Duration)
	RecordSet(layer string, success bool, duration time.Duration)
	RecordDelete(layer string, success bool, duration time.Duration)

	// Session store warm-up writer
	RecordQueueDepth(layer string, depth int)
	RecordWriteDropped(layer string)
	RecordAsyncWrite(layer string, success bool, duration time.Duration)

	// Dashboard HTTP surface
	RecordHTTPRequest(route string, status int, duration time.Duration)
}

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of probe calls through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Outcome labels shared by collectors.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// NoOpCollector drops every measurement.
type NoOpCollector struct{}

func (NoOpCollector) RecordUpstreamCall(endpoint, outcome string, duration time.Duration) {}
func (NoOpCollector) RecordTransfer(kind, outcome string) {}
func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}
func (NoOpCollector) RecordGet(layer string, hit bool, duration time.Duration) {}
func (NoOpCollector) RecordSet(layer string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordDelete(layer string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordQueueDepth(layer string, depth int) {}
func (NoOpCollector) RecordWriteDropped(layer string) {}
func (NoOpCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordHTTPRequest(route string, status int, duration time.Duration) {}

// OrNoOp returns c, or a NoOpCollector when c is nil.
func OrNoOp(c Collector) Collector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}

// Multi fans every measurement out to several collectors.
type Multi []Collector

func (m Multi) RecordUpstreamCall(endpoint, outcome string, duration time.Duration) {
	for _, c := range m {
		c.RecordUpstreamCall(endpoint, outcome, duration)
	}
}

func (m Multi) RecordTransfer(kind, outcome string) {
	for _, c := range m {
		c.RecordTransfer(kind, outcome)
	}
}

func (m Multi) RecordCircuitState(name string, state CircuitState) {
	for _, c := range m {
		c.RecordCircuitState(name, state)
	}
}

func (m Multi) RecordGet(layer string, hit bool, duration time.Duration) {
	for _, c := range m {
		c.RecordGet(layer, hit, duration)
	}
}

func (m Multi) RecordSet(layer string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordSet(layer, success, duration)
	}
}

func (m Multi) RecordDelete(layer string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordDelete(layer, success, duration)
	}
}

func (m Multi) RecordQueueDepth(layer string, depth int) {
	for _, c := range m {
		c.RecordQueueDepth(layer, depth)
	}
}

func (m Multi) RecordWriteDropped(layer string) {
	for _, c := range m {
		c.RecordWriteDropped(layer)
	}
}

func (m Multi) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordAsyncWrite(layer, success, duration)
	}
}

func (m Multi) RecordHTTPRequest(route string, status int, duration time.Duration) {
	for _, c := range m {
		c.RecordHTTPRequest(route, status, duration)
	}
}
