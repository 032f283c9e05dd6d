package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"pmdss/internal/config"
	"pmdss/internal/etl"
	"pmdss/internal/logger"
	"pmdss/internal/runlock"
	"pmdss/internal/runlog"
	"pmdss/internal/source"
	"pmdss/internal/store"
	"pmdss/internal/warehouse"
)

const redisLockKey = "pmdss:etl:lock"

func runCmd(cfg *config.Config) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ETL once, or every --interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runETL(ctx, *cfg, interval)
		},
	}

	cmd.Flags().IntVarP(&cfg.FactConcurrency, "concurrency", "c", cfg.FactConcurrency, "Fact tables built in parallel")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Repeat the run on this interval (0 runs once)")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve prometheus metrics on this address")

	return cmd
}

func runETL(ctx context.Context, cfg config.Config, interval time.Duration) error {
	log := logger.New(cfg.Verbose)

	srcDB, err := store.OpenWithOptions(ctx, cfg.SourceDatabaseURL, store.OpenOptions{MaxElapsed: time.Minute, Logger: log})
	if err != nil {
		return fmt.Errorf("source database: %w", err)
	}
	defer srcDB.Close()

	whDB, err := store.OpenWithOptions(ctx, cfg.WarehouseDatabaseURL, store.OpenOptions{MaxElapsed: time.Minute, Logger: log})
	if err != nil {
		return fmt.Errorf("warehouse database: %w", err)
	}
	defer whDB.Close()

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisClient, err = store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	recorders, err := buildRecorders(ctx, cfg, redisClient, log)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	pipeline := etl.NewPipeline(
		source.NewReader(srcDB, log),
		warehouse.NewLoader(whDB, log),
		etl.Options{
			Concurrency: cfg.FactConcurrency,
			Clock:       clock,
			Logger:      log,
			Lock:        buildLock(cfg, redisClient, whDB, log),
			Recorders:   recorders,
		},
	)
	defer pipeline.Close()

	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, cfg.MetricsAddr, log)
	}

	if interval <= 0 {
		_, err := pipeline.Run(ctx)
		return err
	}
	return runEvery(ctx, clock, interval, pipeline, log)
}

// runEvery runs immediately and then on every tick. Failed runs are logged
// and the loop keeps going; it returns only when ctx is cancelled.
func runEvery(ctx context.Context, clock clockwork.Clock, interval time.Duration, p *etl.Pipeline, log *slog.Logger) error {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Run(ctx); err != nil {
			if errors.Is(err, etl.ErrRunInProgress) {
				log.Warn("skipping tick, another run holds the lock")
			} else if ctx.Err() == nil {
				log.Error("scheduled run failed", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return nil
		case <-ticker.Chan():
		}
	}
}

func buildLock(cfg config.Config, client *redis.Client, whDB *sql.DB, log *slog.Logger) runlock.Locker {
	if client != nil {
		log.Debug("using redis run lock", "key", redisLockKey, "ttl", cfg.RunLockTTL)
		return runlock.NewRedisLock(client, redisLockKey, cfg.RunLockTTL)
	}
	log.Debug("using postgres advisory run lock")
	return runlock.NewPostgresLock(whDB, runlock.DefaultAdvisoryKey)
}

func buildRecorders(ctx context.Context, cfg config.Config, client *redis.Client, log *slog.Logger) ([]etl.Recorder, error) {
	var recorders []etl.Recorder
	if client != nil {
		recorders = append(recorders, runlog.NewRedisStore(client, cfg.RunHistorySize))
	}
	if cfg.MinIO.Enabled() {
		archive, err := runlog.NewArchive(ctx, cfg.MinIO, log)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, archive)
	}
	return recorders, nil
}

func serveMetrics(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
