package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanizaheer02/impact-tracker/internal/audit"
	"github.com/hanizaheer02/impact-tracker/internal/infra"
	"github.com/hanizaheer02/impact-tracker/internal/metrics"
)

// The worker reconciles the counters record with the ledger on a fixed interval
// and exposes the drift gauge on :PORT/metrics.
func main() {
	_ = godotenv.Load(".env", ".env.local")

	cfg, err := infra.LoadLedgerConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")
	if cfg.LedgerBackend != infra.BackendPostgres {
		logger.Fatal().Str("backend", cfg.LedgerBackend).Msg("worker: audit needs the postgres ledger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := infra.OpenSQLDB(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reconciler := audit.NewReconciler(db, logger, metrics.New(reg))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("worker: metrics server failed")
		}
	}()

	logger.Info().Dur("interval", cfg.AuditInterval).Msg("worker: ledger audit started")
	if err := reconciler.Run(ctx, cfg.AuditInterval); err != nil {
		logger.Error().Err(err).Msg("worker: audit stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("worker: stopped")
}
