// Package runlog keeps finished ETL run reports for operators and the API.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pmdss/internal/etl"
)

var ErrNoRuns = errors.New("no ETL run recorded")

// RedisStore keeps the latest report under one key and a capped history list
// of recent reports, newest first.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	history int64
}

// NewRedisStore keeps at most history reports in the list.
func NewRedisStore(client *redis.Client, history int) *RedisStore {
	if history <= 0 {
		history = 20
	}
	return &RedisStore{
		client:  client,
		prefix:  "pmdss:etl:",
		history: int64(history),
	}
}

func (s *RedisStore) lastKey() string    { return s.prefix + "last_run" }
func (s *RedisStore) historyKey() string { return s.prefix + "runs" }

// Record implements etl.Recorder.
func (s *RedisStore) Record(ctx context.Context, report *etl.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.lastKey(), data, 0)
	pipe.LPush(ctx, s.historyKey(), data)
	pipe.LTrim(ctx, s.historyKey(), 0, s.history-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save run report: %w", err)
	}
	return nil
}

func (s *RedisStore) Last(ctx context.Context) (*etl.Report, error) {
	data, err := s.client.Get(ctx, s.lastKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("lookup last run: %w", err)
	}

	var report etl.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshal run report: %w", err)
	}
	return &report, nil
}

// Recent returns up to limit reports, newest first.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]etl.Report, error) {
	if limit <= 0 || int64(limit) > s.history {
		limit = int(s.history)
	}
	items, err := s.client.LRange(ctx, s.historyKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	reports := make([]etl.Report, 0, len(items))
	for _, item := range items {
		var report etl.Report
		if err := json.Unmarshal([]byte(item), &report); err != nil {
			return nil, fmt.Errorf("unmarshal run report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
