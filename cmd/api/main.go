package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hanizaheer02/impact-tracker/internal/adapter/memory"
	"github.com/hanizaheer02/impact-tracker/internal/adapter/notify"
	"github.com/hanizaheer02/impact-tracker/internal/adapter/repo"
	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/fallback"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
	"github.com/hanizaheer02/impact-tracker/internal/http/handlers"
	"github.com/hanizaheer02/impact-tracker/internal/http/httpapi"
	"github.com/hanizaheer02/impact-tracker/internal/infra"
	"github.com/hanizaheer02/impact-tracker/internal/infra/geoip"
	"github.com/hanizaheer02/impact-tracker/internal/ledger"
	"github.com/hanizaheer02/impact-tracker/internal/metrics"
	"github.com/hanizaheer02/impact-tracker/internal/middleware"
	"github.com/hanizaheer02/impact-tracker/internal/stream"
)

// backend is the ledger store together with its change feed.
type backend struct {
	store  domain.LedgerStore
	reader stream.Reader
	feed   domain.ChangeFeed
	close  func()
}

func main() {
	// .env is optional
	_ = godotenv.Load(".env", ".env.local")

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	regions := geo.DefaultDirectory()
	if cfg.RegionsFile != "" {
		if regions, err = geo.LoadDirectory(cfg.RegionsFile); err != nil {
			logger.Fatal().Err(err).Str("path", cfg.RegionsFile).Msg("failed to load regions")
		}
	}
	if !fallback.Covers(regions) {
		logger.Warn().Msg("demo map data points at regions missing from the directory")
	}

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open geoip database")
	}
	defer resolver.Close()
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.CountryCode
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.LedgerBackend).Msg("failed to open ledger")
	}
	defer be.close()

	writer := ledger.NewWriter(be.store, regions, logger,
		ledger.WithMaxAttempts(cfg.LedgerMaxWriteAttempts),
		ledger.WithMetrics(m),
	)
	aggregator := stream.NewAggregator(be.reader, be.feed, stream.Config{
		FeedWindow:      cfg.FeedWindow,
		SnapshotTimeout: cfg.SnapshotTimeout,
		RetryDelay:      cfg.SubscriptionRetry,
	}, logger, m)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		if err := aggregator.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("live views stopped")
		}
	}()

	app := handlers.NewApp(writer, aggregator, regions, cfg.MapWindow, reg, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   lookup,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Str("backend", cfg.LedgerBackend).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	<-aggDone
	logger.Info().Msg("server stopped")
}

func openBackend(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*backend, error) {
	switch cfg.LedgerBackend {
	case infra.BackendMemory:
		seed, err := decimal.NewFromString(cfg.SeedTotalDonations)
		if err != nil {
			return nil, err
		}
		store := memory.NewStore()
		store.Provision(domain.AggregateCounters{TotalDonations: seed, UniqueDonors: int64(cfg.SeedUniqueDonors)})
		logger.Warn().Msg("using in-memory ledger; donations are lost on restart")
		return &backend{store: store, reader: store, feed: store, close: func() {}}, nil
	default:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		ledgerRepo := repo.NewLedgerRepository(runner, cfg.LedgerNotifyChannel)
		return &backend{
			store:  ledgerRepo,
			reader: ledgerRepo,
			feed:   notify.NewListener(cfg.DatabaseURL, cfg.LedgerNotifyChannel, logger),
			close:  pool.Close,
		}, nil
	}
}
