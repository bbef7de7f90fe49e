package bankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bank-dashboard/pkg/logging"
	"bank-dashboard/pkg/metrics"
	"bank-dashboard/pkg/resilience"

	"go.uber.org/zap"
)

// Upstream endpoint paths.
const (
	BalancesPath     = "/accounts/balances"
	TransactionsPath = "/accounts/transactions"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 1 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the upstream API root, e.g. "https://bank.example/api".
	BaseURL string

	// HTTPClient defaults to a client without its own timeout; the
	// breaker's timeout bounds every call.
	HTTPClient *http.Client

	// Resilience defaults to resilience.DefaultConfig().
	Resilience *resilience.Config

	Metrics metrics.Collector
}

// Client calls the upstream banking API. A Client without a token source
// fails every call with ErrNoCredential; use WithTokens to bind one.
// Clients derived with WithTokens share the HTTP client and breaker.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *resilience.Breaker
	tokens  TokenSource
	metrics metrics.Collector
	logger  *logging.Logger
}

// New creates a client for config.BaseURL.
func New(config Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("bankapi: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("bankapi: base url %q must be http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	rc := resilience.DefaultConfig()
	if config.Resilience != nil {
		rc = *config.Resilience
	}
	// A rejected request is an answer, not an outage.
	rc = rc.WithIsSuccessful(func(err error) bool {
		var se *StatusError
		if errors.As(err, &se) {
			return se.StatusCode < http.StatusInternalServerError
		}
		return err == nil
	})

	collector := metrics.OrNoOp(config.Metrics)

	return &Client{
		base:    base,
		http:    httpClient,
		breaker: resilience.NewBreaker("bankapi", rc, collector),
		metrics: collector,
		logger:  logging.Global().Named("bankapi"),
	}, nil
}

// WithTokens returns a client that authenticates with ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	clone := *c
	clone.tokens = ts
	return &clone
}

// Breaker exposes the upstream breaker for status reporting.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Balances fetches the balance snapshot.
func (c *Client) Balances(ctx context.Context) (BalanceSnapshot, error) {
	var snapshot BalanceSnapshot
	if err := c.do(ctx, http.MethodGet, BalancesPath, nil, &snapshot); err != nil {
		return BalanceSnapshot{}, err
	}
	return snapshot, nil
}

// Transactions fetches the transaction history in server order.
func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	var txs []Transaction
	if err := c.do(ctx, http.MethodGet, TransactionsPath, nil, &txs); err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}

// SubmitTransfer posts req to the endpoint of kind. Only the status is
// inspected; the body of a success response is ignored.
func (c *Client) SubmitTransfer(ctx context.Context, kind TransferKind, req TransferRequest) error {
	if _, err := ParseTransferKind(string(kind)); err != nil {
		return err
	}

	err := c.do(ctx, http.MethodPost, kind.Path(), req, nil)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	c.metrics.RecordTransfer(kind.String(), outcome)

	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.tokens == nil {
		return ErrNoCredential
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	if token == "" {
		return ErrNoCredential
	}

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("bankapi: encode request: %w", err)
		}
	}

	start := time.Now()
	err = c.breaker.Do(ctx, method+" "+path, func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, token, payload, out)
	})
	elapsed := time.Since(start)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = Classify(err)
	}
	c.metrics.RecordUpstreamCall(path, outcome, elapsed)

	if err != nil {
		c.logger.Warn("upstream call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("error_type", Classify(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("upstream call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("bankapi: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{Endpoint: path, StatusCode: res.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return nil
}
