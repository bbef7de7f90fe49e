package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"bank-dashboard/pkg/bankapi"
	"bank-dashboard/pkg/metrics"
	"bank-dashboard/pkg/metrics/memory"
	"bank-dashboard/pkg/metrics/prometheus"
	"bank-dashboard/pkg/session"
	sessionmem "bank-dashboard/pkg/session/memory"

	"github.com/golang-jwt/jwt/v5"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBank is an httptest upstream that counts calls per path.
type fakeBank struct {
	mu             sync.Mutex
	balances       string
	transactions   string
	transferStatus int
	calls          map[string]int
	bodies         map[string]bankapi.TransferRequest
	auth           []string

	// when set, transfer calls signal entered and wait for release
	entered chan struct{}
	release chan struct{}
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		balances:       `{"transferable":100,"savings":50,"savingsHold":0,"creditLimit":500}`,
		transactions:   `[]`,
		transferStatus: http.StatusOK,
		calls:          make(map[string]int),
		bodies:         make(map[string]bankapi.TransferRequest),
	}
}

func (b *fakeBank) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.release != nil && strings.HasPrefix(r.URL.Path, "/tx/") {
		b.entered <- struct{}{}
		<-b.release
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls[r.URL.Path]++
	b.auth = append(b.auth, r.Header.Get("Authorization"))

	switch {
	case r.URL.Path == bankapi.BalancesPath:
		_, _ = io.WriteString(w, b.balances)
	case r.URL.Path == bankapi.TransactionsPath:
		_, _ = io.WriteString(w, b.transactions)
	case strings.HasPrefix(r.URL.Path, "/tx/"):
		var req bankapi.TransferRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.bodies[r.URL.Path] = req
		w.WriteHeader(b.transferStatus)
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBank) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

type harness struct {
	bank    *fakeBank
	server  *httptest.Server
	client  *http.Client
	metrics *memory.MemoryCollector
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	bank := newFakeBank()
	upstream := httptest.NewServer(bank)
	t.Cleanup(upstream.Close)

	mc := memory.NewMemoryCollector()
	registry := prom.NewRegistry()
	pc := prometheus.NewPrometheusCollector("dashboard_test")
	require.NoError(t, pc.Register(registry))

	api, err := bankapi.New(bankapi.Config{BaseURL: upstream.URL, Metrics: metrics.Multi{mc, pc}})
	require.NoError(t, err)

	store := session.NewStore(sessionmem.New(sessionmem.Config{Name: "L1-memory"}), time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	config := DefaultConfig()
	config.Location = time.UTC
	if mutate != nil {
		mutate(&config)
	}

	s, err := NewServer(Deps{
		Store:    store,
		API:      api,
		Metrics:  metrics.Multi{mc, pc},
		Gatherer: registry,
		Snapshot: mc,
	}, config)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &harness{
		bank:    bank,
		server:  srv,
		client:  &http.Client{Jar: jar},
		metrics: mc,
	}
}

func (h *harness) get(t *testing.T, path string) (int, string) {
	t.Helper()
	res, err := h.client.Get(h.server.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func (h *harness) post(t *testing.T, path string, form url.Values) (int, string) {
	t.Helper()
	res, err := h.client.PostForm(h.server.URL+path, form)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func (h *harness) login(t *testing.T, token string) string {
	t.Helper()
	status, body := h.post(t, "/login", url.Values{"token": {token}})
	require.Equal(t, http.StatusOK, status)
	return body
}

func TestDashboard_RequiresCredential(t *testing.T) {
	h := newHarness(t, nil)

	status, body := h.get(t, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Sign in")
	assert.Zero(t, h.bank.count(bankapi.BalancesPath))
}

func TestLogin_EmptyToken(t *testing.T) {
	h := newHarness(t, nil)

	status, body := h.post(t, "/login", url.Values{"token": {"  "}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Enter an access token.")
}

func TestDashboard_RendersBalances(t *testing.T) {
	h := newHarness(t, nil)
	body := h.login(t, "tok")

	assert.Contains(t, body, "Transferable: $100")
	assert.Contains(t, body, "Savings: $50")
	assert.Contains(t, body, "Savings Hold: $0")
	assert.Contains(t, body, "Credit Limit: $500")
	assert.Contains(t, body, "Interbank Transfer")
	assert.Contains(t, body, "Wire Transfer")
	assert.Contains(t, body, "Welcome, customer")
}

func TestDashboard_SendsBearerCredential(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, "secret-token")

	h.bank.mu.Lock()
	defer h.bank.mu.Unlock()
	require.NotEmpty(t, h.bank.auth)
	for _, a := range h.bank.auth {
		assert.Equal(t, "Bearer secret-token", a)
	}
}

func TestDashboard_EmptyHistoryRendersHeaderOnly(t *testing.T) {
	h := newHarness(t, nil)
	body := h.login(t, "tok")

	assert.Contains(t, body, "<th>ID</th><th>Type</th><th>Amount</th><th>Date</th>")
	assert.NotContains(t, body, `class="txn"`)
}

func TestDashboard_RendersTransactions(t *testing.T) {
	h := newHarness(t, nil)
	h.bank.transactions = `[{"txnId":"tx-9","type":"WIRE","amount":-25.5,"createdAt":"2025-03-04T13:05:09Z"}]`

	body := h.login(t, "tok")
	assert.Contains(t, body, `<tr class="txn"><td>tx-9</td><td>WIRE</td><td>-25.5</td><td>3/4/2025, 1:05:09 PM</td></tr>`)
}

func TestDashboard_BalancesKeepPayloadScale(t *testing.T) {
	h := newHarness(t, nil)
	h.bank.balances = `{"transferable":"100.50","savings":"50.00","savingsHold":0.5,"creditLimit":500}`

	body := h.login(t, "tok")
	assert.Contains(t, body, "Transferable: $100.50")
	assert.Contains(t, body, "Savings: $50.00")
	assert.Contains(t, body, "Savings Hold: $0.5")
	assert.Contains(t, body, "Credit Limit: $500")

	// held state is rendered from the session store on later views
	_, body = h.get(t, "/")
	assert.Contains(t, body, "Transferable: $100.50")
}

func TestDashboard_ZonelessDateIsLocalTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	h := newHarness(t, func(c *Config) { c.Location = ny })
	h.bank.transactions = `[
		{"txnId":"a","type":"DEPOSIT","amount":"1.00","createdAt":"2025-03-04T13:05:09"},
		{"txnId":"b","type":"DEPOSIT","amount":"2.00","createdAt":"2025-03-04T13:05:09Z"}
	]`

	body := h.login(t, "tok")
	assert.Contains(t, body, `<td>a</td><td>DEPOSIT</td><td>1.00</td><td>3/4/2025, 1:05:09 PM</td>`)
	assert.Contains(t, body, `<td>b</td><td>DEPOSIT</td><td>2.00</td><td>3/4/2025, 8:05:09 AM</td>`)
}

func TestDashboard_UnreadableDateKeepsRow(t *testing.T) {
	h := newHarness(t, nil)
	h.bank.transactions = `[
		{"txnId":"a","type":"DEPOSIT","amount":"1.00","createdAt":"2025-03-04T13:05:09Z"},
		{"txnId":"b","type":"WIRE","amount":"-2.00","createdAt":"2025-03-04 13:05:09"}
	]`

	body := h.login(t, "tok")
	assert.Contains(t, body, `<td>a</td><td>DEPOSIT</td><td>1.00</td><td>3/4/2025, 1:05:09 PM</td>`)
	assert.Contains(t, body, `<td>b</td><td>WIRE</td><td>-2.00</td><td></td>`)
	assert.NotContains(t, body, `class="error"`)
}

func TestDashboard_WelcomeNameFromCredential(t *testing.T) {
	h := newHarness(t, nil)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "Ruth Allen"}).SignedString([]byte("k"))
	require.NoError(t, err)

	body := h.login(t, token)
	assert.Contains(t, body, "Welcome, Ruth Allen")
}

func TestDashboard_PageViewsDoNotRefetch(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, "tok")
	h.get(t, "/")
	h.get(t, "/")

	assert.Equal(t, 1, h.bank.count(bankapi.BalancesPath))
	assert.Equal(t, 1, h.bank.count(bankapi.TransactionsPath))

	h.post(t, "/reload", nil)
	assert.Equal(t, 2, h.bank.count(bankapi.BalancesPath))
	assert.Equal(t, 2, h.bank.count(bankapi.TransactionsPath))
}

func TestTransfer_SuccessRefreshesBalancesOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, "tok")

	_, body := h.post(t, "/transfers/wire/open", nil)
	assert.Contains(t, body, "Wire Transfer</h2>")

	h.bank.mu.Lock()
	h.bank.balances = `{"transferable":75,"savings":50,"savingsHold":0,"creditLimit":500}`
	h.bank.mu.Unlock()

	_, body = h.post(t, "/transfers/submit", url.Values{"amount": {"25"}, "otp": {"000000"}})

	assert.Equal(t, 1, h.bank.count("/tx/wire"))
	assert.Zero(t, h.bank.count("/tx/interbank"))
	assert.Equal(t, bankapi.TransferRequest{Amount: "25", OTP: "000000"}, h.bank.bodies["/tx/wire"])
	assert.Equal(t, 2, h.bank.count(bankapi.BalancesPath))
	assert.Equal(t, 1, h.bank.count(bankapi.TransactionsPath))
	assert.NotContains(t, body, `id="transfer-dialog"`)
	assert.Contains(t, body, "Transferable: $75")
}

func TestTransfer_InterbankPath(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, "tok")

	h.post(t, "/transfers/Interbank/open", nil)
	h.post(t, "/transfers/submit", url.Values{"amount": {"1"}, "otp": {"2"}})

	assert.Equal(t, 1, h.bank.count("/tx/interbank"))
	assert.Zero(t, h.bank.count("/tx/wire"))
}

func TestTransfer_FailureKeepsDialogOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.bank.transferStatus = http.StatusInternalServerError
	h.login(t, "tok")

	h.post(t, "/transfers/wire/open", nil)
	_, body := h.post(t, "/transfers/submit", url.Values{"amount": {"25"}, "otp": {"000000"}})

	assert.Contains(t, body, `id="transfer-dialog"`)
	assert.Contains(t, body, `name="amount" value="25"`)
	assert.Contains(t, body, `name="otp" value="000000"`)
	assert.Contains(t, body, "The bank rejected the request (500 Internal Server Error).")
	assert.Equal(t, 1, h.bank.count(bankapi.BalancesPath))
}

func TestTransfer_CancelWhileSubmitting(t *testing.T) {
	h := newHarness(t, nil)
	h.bank.transferStatus = http.StatusInternalServerError
	h.bank.entered = make(chan struct{})
	h.bank.release = make(chan struct{})
	h.login(t, "tok")
	h.post(t, "/transfers/wire/open", nil)

	done := make(chan error, 1)
	go func() {
		res, err := h.client.PostForm(h.server.URL+"/transfers/submit", url.Values{"amount": {"25"}, "otp": {"1"}})
		if err == nil {
			res.Body.Close()
		}
		done <- err
	}()
	<-h.bank.entered

	_, body := h.post(t, "/transfers/cancel", nil)
	assert.Contains(t, body, `id="transfer-dialog"`)
	_, body = h.post(t, "/transfers/interbank/open", nil)
	assert.Contains(t, body, `id="transfer-dialog"`)

	close(h.bank.release)
	require.NoError(t, <-done)

	_, body = h.get(t, "/")
	assert.Contains(t, body, `id="transfer-dialog"`)
	assert.Contains(t, body, `name="amount" value="25"`)
	assert.Contains(t, body, "The bank rejected the request (500 Internal Server Error).")
	assert.Zero(t, h.bank.count("/tx/interbank"))
}

func TestShareSubmit_OnlyWaitersAreReported(t *testing.T) {
	s := &Server{}
	started := make(chan struct{})
	release := make(chan struct{})
	var runs int32

	leader := make(chan bool, 1)
	go func() {
		leader <- s.shareSubmit("sid", func() {
			atomic.AddInt32(&runs, 1)
			close(started)
			<-release
		})
	}()
	<-started

	follower := make(chan bool, 1)
	go func() {
		follower <- s.shareSubmit("sid", func() { atomic.AddInt32(&runs, 1) })
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.False(t, <-leader)
	assert.True(t, <-follower)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	// a lone submit runs itself
	assert.False(t, s.shareSubmit("other", func() {}))
}

func TestTransfer_RefreshHistoryFlag(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RefreshHistoryOnTransfer = true })
	h.login(t, "tok")

	h.post(t, "/transfers/wire/open", nil)
	h.post(t, "/transfers/submit", url.Values{"amount": {"25"}, "otp": {"000000"}})

	assert.Equal(t, 2, h.bank.count(bankapi.TransactionsPath))
}

func TestTransfer_CancelDiscardsForm(t *testing.T) {
	h := newHarness(t, nil)
	h.bank.transferStatus = http.StatusBadRequest
	h.login(t, "tok")

	h.post(t, "/transfers/wire/open", nil)
	h.post(t, "/transfers/submit", url.Values{"amount": {"25"}, "otp": {"000000"}})
	_, body := h.post(t, "/transfers/cancel", nil)
	assert.NotContains(t, body, `id="transfer-dialog"`)

	_, body = h.post(t, "/transfers/wire/open", nil)
	assert.Contains(t, body, `name="amount" value=""`)
}

func TestTransfer_UnknownKind(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, "tok")

	status, _ := h.post(t, "/transfers/crypto/open", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLogout(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, "tok")

	_, body := h.post(t, "/logout", nil)
	assert.Contains(t, body, "Sign in")

	status, _ := h.get(t, "/api/view")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestViewJSON(t *testing.T) {
	h := newHarness(t, nil)

	status, _ := h.get(t, "/api/view")
	assert.Equal(t, http.StatusUnauthorized, status)

	h.login(t, "tok")
	h.post(t, "/transfers/wire/open", nil)

	status, body := h.get(t, "/api/view")
	require.Equal(t, http.StatusOK, status)

	var got viewResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.True(t, got.View.Active)
	assert.True(t, got.View.Dialog.Open)
	assert.Equal(t, bankapi.Wire, got.View.Dialog.Kind)
	assert.Equal(t, "100", got.View.Balances.Transferable.String())
	assert.Equal(t, []string{"Interbank", "Wire"}, got.Kinds)
}

func TestSessionCookie(t *testing.T) {
	h := newHarness(t, nil)

	res, err := http.Get(h.server.URL + "/login")
	require.NoError(t, err)
	defer res.Body.Close()

	var found *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == SessionCookie {
			found = c
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.HttpOnly)
	assert.True(t, session.ValidID(found.Value))
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
}

func TestOperationalEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	status, body := h.get(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"healthy"`)

	status, body = h.get(t, "/status")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"upstream_circuit":"closed"`)

	status, body = h.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "dashboard_test_http_requests_total")

	status, body = h.get(t, "/metrics/json")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"/health"`)

	assert.Equal(t, int64(1), h.metrics.HTTPRequests("/health", http.StatusOK))
}
