package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/italolelis/transloader/internal/job"
	"github.com/italolelis/transloader/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "task:"
	recentIDsKey = "task_ids"
)

// Ledger stores job records in Redis as JSON values with a fixed TTL, plus a
// bounded newest-first list of recent job ids.
type Ledger struct {
	client *redis.Client
}

// NewLedger connects to Redis using a redis:// URL and pings it once.
func NewLedger(ctx context.Context, redisURL string) (*Ledger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Ledger{client: client}, nil
}

func (l *Ledger) Close() error {
	return l.client.Close()
}

// Ping reports whether the Redis backend is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Ledger) Get(ctx context.Context, id string) (*job.Job, error) {
	data, err := l.client.Get(ctx, keyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to get job record: %w", err)
	}

	var j job.Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job record: %w", err)
	}

	return &j, nil
}

func (l *Ledger) Put(ctx context.Context, id string, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}

	if err := l.client.Set(ctx, keyPrefix+id, data, storage.RecordTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job record: %w", err)
	}

	return nil
}

func (l *Ledger) Remove(ctx context.Context, id string) error {
	if err := l.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to remove job record: %w", err)
	}

	return nil
}

// PushRecent prepends the id to the recent-ids index and trims it to the cap.
func (l *Ledger) PushRecent(ctx context.Context, id string) error {
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, recentIDsKey, id)
	pipe.LTrim(ctx, recentIDsKey, 0, storage.RecentIDsCap-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push recent id: %w", err)
	}

	return nil
}

func (l *Ledger) DropRecent(ctx context.Context, id string) error {
	if err := l.client.LRem(ctx, recentIDsKey, 0, id).Err(); err != nil {
		return fmt.Errorf("failed to drop recent id: %w", err)
	}

	return nil
}

func (l *Ledger) RecentIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > storage.RecentIDsCap {
		limit = storage.RecentIDsCap
	}

	ids, err := l.client.LRange(ctx, recentIDsKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent ids: %w", err)
	}

	return ids, nil
}
