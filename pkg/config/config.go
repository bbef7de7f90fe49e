package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Environment variable names.
const (
	EnvHTTPAddr                 = "HTTP_ADDR"
	EnvBankAPIURL               = "BANK_API_URL"
	EnvUpstreamTimeout          = "UPSTREAM_TIMEOUT"
	EnvBreakerTimeout           = "BREAKER_TIMEOUT"
	EnvBreakerFailures          = "BREAKER_FAILURES"
	EnvRedisAddr                = "REDIS_ADDR"
	EnvRedisPassword            = "REDIS_PASSWORD"
	EnvSessionTTL               = "SESSION_TTL"
	EnvSessionMaxEntries        = "SESSION_MAX_ENTRIES"
	EnvCookieSecure             = "COOKIE_SECURE"
	EnvCurrencyPrefix           = "CURRENCY_PREFIX"
	EnvTimeLayout               = "TIME_LAYOUT"
	EnvTimeZone                 = "TIME_ZONE"
	EnvRefreshHistoryOnTransfer = "REFRESH_HISTORY_ON_TRANSFER"
	EnvMetricsNamespace         = "METRICS_NAMESPACE"
)

// Config is the process configuration.
type Config struct {
	HTTPAddr string

	// BankAPIURL is the upstream API root. Required.
	BankAPIURL string

	UpstreamTimeout time.Duration
	BreakerTimeout  time.Duration
	BreakerFailures int

	// RedisAddr enables the Redis session layer when set.
	RedisAddr     string
	RedisPassword string

	SessionTTL        time.Duration
	SessionMaxEntries int
	CookieSecure      bool

	CurrencyPrefix string
	TimeLayout     string
	TimeZone       string

	RefreshHistoryOnTransfer bool

	MetricsNamespace string
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		UpstreamTimeout:   10 * time.Second,
		BreakerTimeout:    30 * time.Second,
		BreakerFailures:   5,
		SessionTTL:        24 * time.Hour,
		SessionMaxEntries: 10000,
		CurrencyPrefix:    "$",
		TimeLayout:        "1/2/2006, 3:04:05 PM",
		TimeZone:          "Local",
		MetricsNamespace:  "dashboard",
	}
}

// FromEnv reads the process environment over Default.
func FromEnv() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads variables through lookup over Default and validates
// the result.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	l := loader{lookup: lookup}

	l.setString(EnvHTTPAddr, &c.HTTPAddr)
	l.setString(EnvBankAPIURL, &c.BankAPIURL)
	l.setDuration(EnvUpstreamTimeout, &c.UpstreamTimeout)
	l.setDuration(EnvBreakerTimeout, &c.BreakerTimeout)
	l.setInt(EnvBreakerFailures, &c.BreakerFailures)
	l.setString(EnvRedisAddr, &c.RedisAddr)
	l.setString(EnvRedisPassword, &c.RedisPassword)
	l.setDuration(EnvSessionTTL, &c.SessionTTL)
	l.setInt(EnvSessionMaxEntries, &c.SessionMaxEntries)
	l.setBool(EnvCookieSecure, &c.CookieSecure)
	l.setString(EnvCurrencyPrefix, &c.CurrencyPrefix)
	l.setString(EnvTimeLayout, &c.TimeLayout)
	l.setString(EnvTimeZone, &c.TimeZone)
	l.setBool(EnvRefreshHistoryOnTransfer, &c.RefreshHistoryOnTransfer)
	l.setString(EnvMetricsNamespace, &c.MetricsNamespace)

	if err := errors.Join(l.errs...); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the values that have no usable fallback.
func (c Config) Validate() error {
	var errs []error

	if c.BankAPIURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvBankAPIURL))
	} else if u, err := url.Parse(c.BankAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an http(s) URL, got %q", EnvBankAPIURL, c.BankAPIURL))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvUpstreamTimeout))
	}
	if c.BreakerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvBreakerTimeout))
	}
	if c.BreakerFailures < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", EnvBreakerFailures))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvSessionTTL))
	}
	if c.SessionMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvSessionMaxEntries))
	}
	if c.TimeLayout == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", EnvTimeLayout))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves TimeZone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvTimeZone, err)
	}
	return loc, nil
}

// PendingTimeout is how long a submitted transfer blocks another one:
// twice the upstream timeout.
func (c Config) PendingTimeout() time.Duration {
	return 2 * c.UpstreamTimeout
}

type loader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (l *loader) setString(name string, val *string) {
	if v, found := l.lookup(name); found {
		*val = v
	}
}

func (l *loader) setDuration(name string, val *time.Duration) {
	v, found := l.lookup(name)
	if !found || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	*val = d
}

func (l *loader) setInt(name string, val *int) {
	v, found := l.lookup(name)
	if !found || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	*val = n
}

func (l *loader) setBool(name string, val *bool) {
	v, found := l.lookup(name)
	if !found || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	*val = b
}
