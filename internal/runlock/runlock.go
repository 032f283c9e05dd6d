// Package runlock keeps two ETL runs from truncating the same warehouse at
// once.
package runlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pmdss/internal/util"
)

var ErrHeld = errors.New("run lock is held by another process")

// Release gives the lock back. It is safe to call after the lock expired.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// releaseScript deletes the key only while it still holds our token, so an
// expired holder can never release a lock taken over by the next run.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLock guards key with a lease of ttl. The lease must outlive the
// longest expected run.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context) (Release, error) {
	token := util.NewID("lock")
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
		return nil
	}, nil
}

// PostgresLock uses a session-level advisory lock on the warehouse itself.
// The lock lives on one dedicated connection until released.
type PostgresLock struct {
	db  *sql.DB
	key int64
}

// DefaultAdvisoryKey is "pmdss" read as a big-endian integer.
const DefaultAdvisoryKey int64 = 0x706d647373

func NewPostgresLock(db *sql.DB, key int64) *PostgresLock {
	return &PostgresLock{db: db, key: key}
}

func (l *PostgresLock) Acquire(ctx context.Context) (Release, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, ErrHeld
	}

	return func(ctx context.Context) error {
		defer conn.Close()
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
		return nil
	}, nil
}
