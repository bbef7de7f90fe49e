package prometheus

import (
	"testing"
	"time"

	"bank-dashboard/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Register(t *testing.T) {
	pc := NewPrometheusCollector("test")
	registry := prometheus.NewRegistry()

	require.NoError(t, pc.Register(registry))
	assert.Error(t, pc.Register(registry), "second registration must collide")
}

func TestPrometheusCollector_Upstream(t *testing.T) {
	pc := NewPrometheusCollector("test")

	pc.RecordUpstreamCall("balances", metrics.OutcomeSuccess, 10*time.Millisecond)
	pc.RecordUpstreamCall("balances", metrics.OutcomeSuccess, 12*time.Millisecond)
	pc.RecordUpstreamCall("balances", "timeout", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(pc.upstreamCalls.WithLabelValues("balances", metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.upstreamCalls.WithLabelValues("balances", "timeout")))
}

func TestPrometheusCollector_CircuitState(t *testing.T) {
	pc := NewPrometheusCollector("test")

	pc.RecordCircuitState("bankapi", metrics.CircuitOpen)
	pc.RecordCircuitState("bankapi", metrics.CircuitHalfOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(pc.circuitState.WithLabelValues("bankapi")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.circuitOpens.WithLabelValues("bankapi")))
}

func TestPrometheusCollector_StoreAndHTTP(t *testing.T) {
	pc := NewPrometheusCollector("test")

	pc.RecordGet("L1", true, time.Millisecond)
	pc.RecordGet("L1", false, time.Millisecond)
	pc.RecordSet("L1", false, time.Millisecond)
	pc.RecordHTTPRequest("dashboard", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(pc.storeHits.WithLabelValues("L1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.storeMisses.WithLabelValues("L1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.storeErrors.WithLabelValues("L1", "set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.httpRequests.WithLabelValues("dashboard", "200")))
}
