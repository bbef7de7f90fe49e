package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bank-dashboard/pkg/bankapi"
	"bank-dashboard/pkg/logging"
	"bank-dashboard/pkg/metrics"
	"bank-dashboard/pkg/metrics/memory"
	"bank-dashboard/pkg/session"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Server serves the dashboard pages and its operational endpoints.
type Server struct {
	store    *session.Store
	api      *bankapi.Client
	metrics  metrics.Collector
	gatherer prometheus.Gatherer
	snapshot *memory.MemoryCollector
	renderer *renderer
	logger   *logging.Logger
	config   Config

	router  *mux.Router
	server  *http.Server
	submits singleflight.Group
	started time.Time
}

// Config holds configuration for the dashboard server.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// CookieSecure marks the session cookie Secure.
	CookieSecure bool

	// CurrencyPrefix is written before balance figures.
	CurrencyPrefix string

	// TimeLayout and Location render transaction dates.
	TimeLayout string
	Location   *time.Location

	// RefreshHistoryOnTransfer also reloads transactions after a transfer.
	RefreshHistoryOnTransfer bool

	// PendingTimeout is how long a pending transfer blocks another one.
	PendingTimeout time.Duration

	// FallbackName greets customers whose credential names nobody.
	FallbackName string
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Address:        ":8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		CurrencyPrefix: "$",
		TimeLayout:     DefaultTimeLayout,
		PendingTimeout: 20 * time.Second,
		FallbackName:   "customer",
	}
}

// Deps are the collaborators a Server needs. Store and API are required.
type Deps struct {
	Store *session.Store
	API   *bankapi.Client

	Metrics metrics.Collector

	// Gatherer is served on /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer

	// Snapshot, when set, is served as JSON on /metrics/json.
	Snapshot *memory.MemoryCollector
}

// NewServer builds the router.
func NewServer(deps Deps, config Config) (*Server, error) {
	if deps.Store == nil || deps.API == nil {
		return nil, errors.New("web: store and api client are required")
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r, err := newRenderer(config.CurrencyPrefix, config.TimeLayout, config.Location)
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:    deps.Store,
		api:      deps.API,
		metrics:  metrics.OrNoOp(deps.Metrics),
		gatherer: gatherer,
		snapshot: deps.Snapshot,
		renderer: r,
		logger:   logging.Global().Named("web"),
		config:   config,
		started:  time.Now(),
	}

	s.router = s.routes()
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	// operational endpoints carry no session
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet)

	app := r.NewRoute().Subrouter()
	app.Use(s.withSession)

	app.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
	app.HandleFunc("/login", s.handleLoginForm).Methods(http.MethodGet)
	app.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	app.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	app.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
	app.HandleFunc("/transfers/{kind}/open", s.handleOpenTransfer).Methods(http.MethodPost)
	app.HandleFunc("/transfers/submit", s.handleSubmitTransfer).Methods(http.MethodPost)
	app.HandleFunc("/transfers/cancel", s.handleCancelTransfer).Methods(http.MethodPost)
	app.HandleFunc("/api/view", s.handleViewJSON).Methods(http.MethodGet)

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine. Listen errors are sent on
// the returned channel.
func (s *Server) Start() <-chan error {
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()
	return errs
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
