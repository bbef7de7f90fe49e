package bankapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bank-dashboard/pkg/metrics"
	"bank-dashboard/pkg/metrics/memory"
	"bank-dashboard/pkg/resilience"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mc metrics.Collector) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Metrics: mc})
	require.NoError(t, err)
	return c.WithTokens(StaticToken("tok-123"))
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://bank"})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "://"})
	assert.Error(t, err)
}

func TestClient_Balances(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, BalancesPath, r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"transferable":100,"savings":50.25,"savingsHold":0,"creditLimit":"500"}`)
	}, nil)

	got, err := c.Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "100", got.Transferable.String())
	assert.Equal(t, "50.25", got.Savings.String())
	assert.True(t, got.SavingsHold.IsZero())
	assert.True(t, got.CreditLimit.Equal(decimal.NewFromInt(500)))
}

func TestClient_Transactions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, TransactionsPath, r.URL.Path)
		_, _ = io.WriteString(w, `[
			{"txnId":"t2","type":"WIRE","amount":-25,"createdAt":"2025-03-04T13:05:09Z"},
			{"txnId":"t1","type":"DEPOSIT","amount":"10.50","createdAt":1741093509000}
		]`)
	}, nil)

	txs, err := c.Transactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t2", txs[0].ID)
	assert.Equal(t, "-25", txs[0].Amount.String())
	assert.Equal(t, time.Date(2025, 3, 4, 13, 5, 9, 0, time.UTC), txs[0].CreatedAt.Time)
	assert.Equal(t, "t1", txs[1].ID)
	assert.Equal(t, "10.50", txs[1].Amount.String())
	assert.Equal(t, int64(1741093509000), txs[1].CreatedAt.UnixMilli())
}

func TestClient_TransactionsKeepRowsWithUnreadableDates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"txnId":"t1","type":"DEPOSIT","amount":"10.00","createdAt":"2025-03-04T13:05:09Z"},
			{"txnId":"t2","type":"WIRE","amount":"-4.10","createdAt":"2025-03-04 13:05:09"}
		]`)
	}, nil)

	txs, err := c.Transactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.False(t, txs[0].CreatedAt.IsZero())
	assert.Equal(t, "t2", txs[1].ID)
	assert.Equal(t, "-4.10", txs[1].Amount.String())
	assert.True(t, txs[1].CreatedAt.IsZero())
}

func TestClient_TransactionsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}, nil)

	txs, err := c.Transactions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

func TestClient_MalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>oops</html>`)
	}, nil)

	_, err := c.Balances(context.Background())
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, "malformed", Classify(err))
}

func TestClient_SubmitTransfer_Paths(t *testing.T) {
	tests := []struct {
		kind TransferKind
		path string
	}{
		{Wire, "/tx/wire"},
		{Interbank, "/tx/interbank"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			var gotPath string
			var gotBody TransferRequest

			mc := memory.NewMemoryCollector()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
				w.WriteHeader(http.StatusCreated)
			}, mc)

			err := c.SubmitTransfer(context.Background(), tt.kind, TransferRequest{Amount: "25", OTP: "000000"})
			require.NoError(t, err)
			assert.Equal(t, tt.path, gotPath)
			assert.Equal(t, TransferRequest{Amount: "25", OTP: "000000"}, gotBody)
			assert.Equal(t, int64(1), mc.Transfers(tt.kind.String(), metrics.OutcomeSuccess))
		})
	}
}

func TestClient_SubmitTransfer_UnknownKind(t *testing.T) {
	var calls int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}, nil)

	err := c.SubmitTransfer(context.Background(), TransferKind("ACH"), TransferRequest{})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Zero(t, atomic.LoadInt64(&calls))
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status       int
		unauthorized bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}, nil)

			err := c.SubmitTransfer(context.Background(), Wire, TransferRequest{Amount: "25", OTP: "000000"})

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, "/tx/wire", se.Endpoint)
			assert.Equal(t, tt.unauthorized, errors.Is(err, ErrUnauthorized))
			assert.NotEmpty(t, Message(err))
		})
	}
}

func TestClient_NoCredential(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Balances(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = c.WithTokens(StaticToken("")).Balances(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)

	failing := TokenSourceFunc(func(ctx context.Context) (string, error) {
		return "", errors.New("store down")
	})
	_, err = c.WithTokens(failing).Balances(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)

	assert.Zero(t, atomic.LoadInt64(&calls))
}

func TestClient_Transport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url})
	require.NoError(t, err)

	_, err = c.WithTokens(StaticToken("t")).Balances(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	rc := resilience.DefaultConfig().WithTimeout(20 * time.Millisecond)
	c, err := New(Config{BaseURL: srv.URL, Resilience: &rc})
	require.NoError(t, err)

	_, err = c.WithTokens(StaticToken("t")).Balances(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rc := resilience.DefaultConfig()
	rc.CircuitBreakerConfig.ReadyToTrip = resilience.ConsecutiveFailures(3)
	mc := memory.NewMemoryCollector()

	c, err := New(Config{BaseURL: srv.URL, Resilience: &rc, Metrics: mc})
	require.NoError(t, err)
	c = c.WithTokens(StaticToken("t"))

	for i := 0; i < 3; i++ {
		_, _ = c.Balances(context.Background())
	}
	_, err = c.Balances(context.Background())

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
	assert.Equal(t, metrics.CircuitOpen, c.Breaker().State())
	assert.Equal(t, int64(1), mc.UpstreamOutcomes(BalancesPath)["circuit_open"])
}

func TestClient_ClientErrorsDoNotOpenBreaker(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	rc := resilience.DefaultConfig()
	rc.CircuitBreakerConfig.ReadyToTrip = resilience.ConsecutiveFailures(2)

	c, err := New(Config{BaseURL: srv.URL, Resilience: &rc})
	require.NoError(t, err)
	c = c.WithTokens(StaticToken("t"))

	for i := 0; i < 5; i++ {
		err := c.SubmitTransfer(context.Background(), Interbank, TransferRequest{Amount: "x"})
		var se *StatusError
		assert.ErrorAs(t, err, &se)
	}
	assert.Equal(t, int64(5), atomic.LoadInt64(&calls))
}

func TestParseTransferKind(t *testing.T) {
	k, err := ParseTransferKind("wire")
	require.NoError(t, err)
	assert.Equal(t, Wire, k)

	k, err = ParseTransferKind("INTERBANK")
	require.NoError(t, err)
	assert.Equal(t, Interbank, k)

	_, err = ParseTransferKind("")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestTimestamp_Malformed(t *testing.T) {
	var tx Transaction
	err := json.Unmarshal([]byte(`{"txnId":"a","createdAt":"yesterday"}`), &tx)
	assert.Error(t, err)
}
