package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"pmdss/internal/app"
	"pmdss/internal/config"
	"pmdss/internal/evm"
	"pmdss/internal/logger"
	"pmdss/internal/runlog"
	"pmdss/internal/store"
	"pmdss/internal/warehouse"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Verbose)
	ctx := context.Background()

	db, err := store.OpenWithOptions(ctx, cfg.WarehouseDatabaseURL, store.OpenOptions{
		MaxElapsed: time.Minute,
		Logger:     log,
	})
	if err != nil {
		log.Error("warehouse connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	clock := clockwork.NewRealClock()
	reader := warehouse.NewReader(db)
	aggregator := evm.NewAggregator(reader, clock)
	composer := evm.NewComposer(aggregator, reader, clock, cfg.UtilizationWindowDays)

	deps := app.Deps{
		Warehouse: reader,
		Projects:  aggregator,
		Scorecard: composer,
		Secret:    []byte(cfg.JWTSecret),
		Clock:     clock,
		CacheTTL:  cfg.MetricsCacheTTL,
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		deps.Runs = runlog.NewRedisStore(client, cfg.RunHistorySize)
		log.Info("reading ETL run history from redis")
	} else {
		log.Warn("REDIS_URL not set, /api/etl/last-run will report no runs")
	}

	service := app.New(deps)
	service.Start()
	defer service.Stop()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("metrics API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
