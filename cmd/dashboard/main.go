package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bank-dashboard/pkg/bankapi"
	"bank-dashboard/pkg/config"
	"bank-dashboard/pkg/logging"
	"bank-dashboard/pkg/metrics"
	"bank-dashboard/pkg/metrics/memory"
	"bank-dashboard/pkg/metrics/prometheus"
	"bank-dashboard/pkg/resilience"
	"bank-dashboard/pkg/session"
	"bank-dashboard/pkg/session/chain"
	sessionmem "bank-dashboard/pkg/session/memory"
	sessionredis "bank-dashboard/pkg/session/redis"
	"bank-dashboard/pkg/web"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	logger, err := logging.NewLoggerFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	if err := run(logger); err != nil {
		logger.Error("dashboard stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(logger *logging.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Metrics
	registry := prom.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	promCollector := prometheus.NewPrometheusCollector(cfg.MetricsNamespace)
	if err := promCollector.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	snapshot := memory.NewMemoryCollector()
	collector := metrics.Multi{promCollector, snapshot}

	// Session store
	layer, err := buildSessionLayer(cfg, collector, logger)
	if err != nil {
		return err
	}
	store := session.NewStore(layer, cfg.SessionTTL)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("session store close failed", zap.Error(err))
		}
	}()

	// Upstream API
	upstream := resilience.DefaultConfig().
		WithTimeout(cfg.UpstreamTimeout).
		WithCircuitBreakerTimeout(cfg.BreakerTimeout)
	upstream.CircuitBreakerConfig.ReadyToTrip = resilience.ConsecutiveFailures(uint32(cfg.BreakerFailures))

	api, err := bankapi.New(bankapi.Config{
		BaseURL:    cfg.BankAPIURL,
		Resilience: &upstream,
		Metrics:    collector,
	})
	if err != nil {
		return err
	}

	// HTTP
	serverConfig := web.DefaultConfig()
	serverConfig.Address = cfg.HTTPAddr
	serverConfig.CookieSecure = cfg.CookieSecure
	serverConfig.CurrencyPrefix = cfg.CurrencyPrefix
	serverConfig.TimeLayout = cfg.TimeLayout
	serverConfig.Location = loc
	serverConfig.RefreshHistoryOnTransfer = cfg.RefreshHistoryOnTransfer
	serverConfig.PendingTimeout = cfg.PendingTimeout()
	// a submit waits for the upstream, so the response deadline must outlast it
	if floor := cfg.UpstreamTimeout + 5*time.Second; serverConfig.WriteTimeout < floor {
		serverConfig.WriteTimeout = floor
	}

	srv, err := web.NewServer(web.Deps{
		Store:    store,
		API:      api,
		Metrics:  collector,
		Gatherer: registry,
		Snapshot: snapshot,
	}, serverConfig)
	if err != nil {
		return err
	}

	logger.Info("dashboard starting",
		zap.String("address", cfg.HTTPAddr),
		zap.String("bank_api", cfg.BankAPIURL),
		zap.String("session_store", layer.Name()),
		zap.Duration("upstream_timeout", cfg.UpstreamTimeout),
		zap.Bool("refresh_history_on_transfer", cfg.RefreshHistoryOnTransfer),
	)
	listenErrs := srv.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err, ok := <-listenErrs:
		if ok && err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// buildSessionLayer returns the memory layer alone, or memory in front of
// Redis when REDIS_ADDR is set.
func buildSessionLayer(cfg config.Config, collector metrics.Collector, logger *logging.Logger) (session.Layer, error) {
	l1 := sessionmem.New(sessionmem.Config{
		Name:       "L1-memory",
		MaxEntries: cfg.SessionMaxEntries,
		DefaultTTL: cfg.SessionTTL,
	})

	if cfg.RedisAddr == "" {
		logger.Info("session store: memory only")
		return chain.NewWithConfig(chain.Config{Metrics: collector, WarmTTL: cfg.SessionTTL}, l1)
	}

	redisConfig := sessionredis.DefaultConfig()
	redisConfig.Addr = cfg.RedisAddr
	redisConfig.Password = cfg.RedisPassword
	redisConfig.DefaultTTL = cfg.SessionTTL

	l2, err := sessionredis.New(redisConfig)
	if err != nil {
		_ = l1.Close()
		return nil, fmt.Errorf("connect redis session store: %w", err)
	}

	logger.Info("session store: memory in front of redis", zap.String("redis_addr", cfg.RedisAddr))
	return chain.NewWithConfig(chain.Config{Metrics: collector, WarmTTL: cfg.SessionTTL}, l1, l2)
}
