package memory

import (
	"strconv"
	"sync"
	"time"

	"bank-dashboard/pkg/metrics"
)

// MemoryCollector keeps measurements in memory for tests and for the
// JSON status endpoint.
type MemoryCollector struct {
	mu sync.RWMutex

	upstream  map[string]*EndpointMetrics
	transfers map[string]map[string]int64
	circuits  map[string]metrics.CircuitState
	opens     map[string]int64
	layers    map[string]*LayerMetrics
	http      map[string]map[int]int64
}

// EndpointMetrics holds counts for one upstream endpoint.
type EndpointMetrics struct {
	Calls     int64
	ByOutcome map[string]int64
	Latencies []time.Duration
}

// LayerMetrics holds counts for one session store layer.
type LayerMetrics struct {
	Hits          int64
	Misses        int64
	Sets          int64
	Deletes       int64
	Errors        int64
	QueueDepth    int
	DroppedWrites int64
	AsyncWrites   int64
	AsyncErrors   int64
}

// NewMemoryCollector creates an empty collector.
func NewMemoryCollector() *MemoryCollector {
	mc := &MemoryCollector{}
	mc.Reset()
	return mc
}

func (mc *MemoryCollector) layer(name string) *LayerMetrics {
	lm, ok := mc.layers[name]
	if !ok {
		lm = &LayerMetrics{}
		mc.layers[name] = lm
	}
	return lm
}

func (mc *MemoryCollector) RecordUpstreamCall(endpoint, outcome string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	em, ok := mc.upstream[endpoint]
	if !ok {
		em = &EndpointMetrics{ByOutcome: make(map[string]int64)}
		mc.upstream[endpoint] = em
	}
	em.Calls++
	em.ByOutcome[outcome]++
	em.Latencies = append(em.Latencies, duration)
}

func (mc *MemoryCollector) RecordTransfer(kind, outcome string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	byOutcome, ok := mc.transfers[kind]
	if !ok {
		byOutcome = make(map[string]int64)
		mc.transfers[kind] = byOutcome
	}
	byOutcome[outcome]++
}

func (mc *MemoryCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.circuits[name] != metrics.CircuitOpen && state == metrics.CircuitOpen {
		mc.opens[name]++
	}
	mc.circuits[name] = state
}

func (mc *MemoryCollector) RecordGet(layer string, hit bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	if hit {
		lm.Hits++
	} else {
		lm.Misses++
	}
}

func (mc *MemoryCollector) RecordSet(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.Sets++
	if !success {
		lm.Errors++
	}
}

func (mc *MemoryCollector) RecordDelete(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.Deletes++
	if !success {
		lm.Errors++
	}
}

func (mc *MemoryCollector) RecordQueueDepth(layer string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layer(layer).QueueDepth = depth
}

func (mc *MemoryCollector) RecordWriteDropped(layer string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layer(layer).DroppedWrites++
}

func (mc *MemoryCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.AsyncWrites++
	if !success {
		lm.AsyncErrors++
	}
}

func (mc *MemoryCollector) RecordHTTPRequest(route string, status int, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	byStatus, ok := mc.http[route]
	if !ok {
		byStatus = make(map[int]int64)
		mc.http[route] = byStatus
	}
	byStatus[status]++
}

// UpstreamCalls returns how many calls were made to endpoint.
func (mc *MemoryCollector) UpstreamCalls(endpoint string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if em, ok := mc.upstream[endpoint]; ok {
		return em.Calls
	}
	return 0
}

// UpstreamOutcomes returns a copy of the per-outcome counts for endpoint.
func (mc *MemoryCollector) UpstreamOutcomes(endpoint string) map[string]int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make(map[string]int64)
	if em, ok := mc.upstream[endpoint]; ok {
		for k, v := range em.ByOutcome {
			out[k] = v
		}
	}
	return out
}

// Transfers returns the count for kind and outcome.
func (mc *MemoryCollector) Transfers(kind, outcome string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.transfers[kind][outcome]
}

// CircuitState returns the last recorded state of breaker name.
func (mc *MemoryCollector) CircuitState(name string) metrics.CircuitState {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.circuits[name]
}

// CircuitOpens returns how often breaker name transitioned to open.
func (mc *MemoryCollector) CircuitOpens(name string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.opens[name]
}

// GetLayerMetrics returns a copy of the metrics for layer, or nil.
func (mc *MemoryCollector) GetLayerMetrics(layer string) *LayerMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if lm, ok := mc.layers[layer]; ok {
		copied := *lm
		return &copied
	}
	return nil
}

// HTTPRequests returns the count for route and status.
func (mc *MemoryCollector) HTTPRequests(route string, status int) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.http[route][status]
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	Upstream  map[string]map[string]int64 `json:"upstream"`
	Transfers map[string]map[string]int64 `json:"transfers"`
	Circuits  map[string]string           `json:"circuits"`
	Layers    map[string]LayerMetrics     `json:"layers"`
	HTTP      map[string]map[string]int64 `json:"http"`
}

// Snapshot copies the current state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snap := Snapshot{
		Upstream:  make(map[string]map[string]int64),
		Transfers: make(map[string]map[string]int64),
		Circuits:  make(map[string]string),
		Layers:    make(map[string]LayerMetrics),
		HTTP:      make(map[string]map[string]int64),
	}

	for endpoint, em := range mc.upstream {
		byOutcome := make(map[string]int64, len(em.ByOutcome))
		for k, v := range em.ByOutcome {
			byOutcome[k] = v
		}
		snap.Upstream[endpoint] = byOutcome
	}
	for kind, byOutcome := range mc.transfers {
		copied := make(map[string]int64, len(byOutcome))
		for k, v := range byOutcome {
			copied[k] = v
		}
		snap.Transfers[kind] = copied
	}
	for name, state := range mc.circuits {
		snap.Circuits[name] = state.String()
	}
	for name, lm := range mc.layers {
		snap.Layers[name] = *lm
	}
	for route, byStatus := range mc.http {
		copied := make(map[string]int64, len(byStatus))
		for code, v := range byStatus {
			copied[strconv.Itoa(code)] = v
		}
		snap.HTTP[route] = copied
	}

	return snap
}

// Reset clears everything.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.upstream = make(map[string]*EndpointMetrics)
	mc.transfers = make(map[string]map[string]int64)
	mc.circuits = make(map[string]metrics.CircuitState)
	mc.opens = make(map[string]int64)
	mc.layers = make(map[string]*LayerMetrics)
	mc.http = make(map[string]map[int]int64)
}
