package prometheus

import (
	"strconv"
	"time"

	"bank-dashboard/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements metrics.Collector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Upstream API
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	transfers       *prometheus.CounterVec

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Session store
	storeHits    *prometheus.CounterVec
	storeMisses  *prometheus.CounterVec
	storeWrites  *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec

	// Warm-up writer
	queueDepth    *prometheus.GaugeVec
	droppedWrites *prometheus.CounterVec
	asyncWrites   *prometheus.CounterVec

	// HTTP
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewPrometheusCollector creates a collector whose metric names are
// prefixed with namespace.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	latencyBuckets := prometheus.ExponentialBuckets(0.0005, 2, 15) // 0.5ms to ~8s

	return &PrometheusCollector{
		namespace: namespace,
		upstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Banking API requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		upstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Banking API request latency",
				Buckets:   latencyBuckets,
			},
			[]string{"endpoint"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Transfer submissions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Circuit breaker transitions to open",
			},
			[]string{"breaker"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"breaker"},
		),
		storeHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_store_hits_total",
				Help:      "Session store reads that found a value, per layer",
			},
			[]string{"layer"},
		),
		storeMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_store_misses_total",
				Help:      "Session store reads that found nothing, per layer",
			},
			[]string{"layer"},
		),
		storeWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_store_writes_total",
				Help:      "Session store set and delete operations, per layer",
			},
			[]string{"layer", "operation"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_store_errors_total",
				Help:      "Session store failures, per layer and operation",
			},
			[]string{"layer", "operation"},
		),
		storeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_store_duration_seconds",
				Help:      "Session store operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"layer", "operation"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "warmup_queue_depth",
				Help:      "Pending warm-up writes per layer",
			},
			[]string{"layer"},
		),
		droppedWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warmup_dropped_total",
				Help:      "Warm-up writes dropped on a full queue",
			},
			[]string{"layer"},
		),
		asyncWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warmup_writes_total",
				Help:      "Warm-up writes by status",
			},
			[]string{"layer", "status"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Dashboard HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Dashboard HTTP request latency",
				Buckets:   latencyBuckets,
			},
			[]string{"route"},
		),
	}
}

// Register registers all metrics with registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.upstreamCalls,
		pc.upstreamLatency,
		pc.transfers,
		pc.circuitOpens,
		pc.circuitState,
		pc.storeHits,
		pc.storeMisses,
		pc.storeWrites,
		pc.storeErrors,
		pc.storeLatency,
		pc.queueDepth,
		pc.droppedWrites,
		pc.asyncWrites,
		pc.httpRequests,
		pc.httpLatency,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

func (pc *PrometheusCollector) RecordUpstreamCall(endpoint, outcome string, duration time.Duration) {
	pc.upstreamCalls.WithLabelValues(endpoint, outcome).Inc()
	pc.upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordTransfer(kind, outcome string) {
	pc.transfers.WithLabelValues(kind, outcome).Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(name).Inc()
	}
}

func (pc *PrometheusCollector) RecordGet(layer string, hit bool, duration time.Duration) {
	if hit {
		pc.storeHits.WithLabelValues(layer).Inc()
	} else {
		pc.storeMisses.WithLabelValues(layer).Inc()
	}
	pc.storeLatency.WithLabelValues(layer, "get").Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordSet(layer string, success bool, duration time.Duration) {
	pc.recordWrite(layer, "set", success, duration)
}

func (pc *PrometheusCollector) RecordDelete(layer string, success bool, duration time.Duration) {
	pc.recordWrite(layer, "delete", success, duration)
}

func (pc *PrometheusCollector) recordWrite(layer, operation string, success bool, duration time.Duration) {
	pc.storeWrites.WithLabelValues(layer, operation).Inc()
	if !success {
		pc.storeErrors.WithLabelValues(layer, operation).Inc()
	}
	pc.storeLatency.WithLabelValues(layer, operation).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordQueueDepth(layer string, depth int) {
	pc.queueDepth.WithLabelValues(layer).Set(float64(depth))
}

func (pc *PrometheusCollector) RecordWriteDropped(layer string) {
	pc.droppedWrites.WithLabelValues(layer).Inc()
}

func (pc *PrometheusCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.asyncWrites.WithLabelValues(layer, status).Inc()
}

func (pc *PrometheusCollector) RecordHTTPRequest(route string, status int, duration time.Duration) {
	pc.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	pc.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}
