package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenOptions tunes how long Open keeps retrying the first ping.
type OpenOptions struct {
	MaxElapsed time.Duration
	Logger     *slog.Logger
}

// OpenWithOptions opens a pgx-backed pool and waits for the server to answer.
// The ETL and API usually start next to a database that is still booting, so
// the first ping is retried with exponential backoff.
func OpenWithOptions(ctx context.Context, databaseURL string, opts OpenOptions) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if attempt > 0 && opts.Logger != nil {
			opts.Logger.Warn("database not ready, retrying", "attempt", attempt)
		}
		attempt++
		return struct{}{}, db.PingContext(ctx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(opts.MaxElapsed))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
