package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisAdapter persists the snapshot as a single JSON value under one key,
// letting multiple Edge instances share a persistence location behind a
// managed Redis instance.
type RedisAdapter struct {
	client *redis.Client
	key    string
}

// NewRedisAdapter creates a RedisAdapter from a redis:// URL and key.
func NewRedisAdapter(url, key string) (*RedisAdapter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse redis url: %w", err)
	}
	if key == "" {
		key = "unleash-edge:snapshot"
	}
	return &RedisAdapter{client: redis.NewClient(opts), key: key}, nil
}

// Load fetches and decodes the snapshot value. A missing key is not an
// error; it returns (nil, nil).
func (r *RedisAdapter) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: redis get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("persistence: decode redis snapshot: %w", err)
	}
	return &snap, nil
}

// Save encodes and stores snap under the configured key. Redis's own
// single-key SET is atomic, so no temp-key dance is needed here.
func (r *RedisAdapter) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: encode redis snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("persistence: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisAdapter) Close() error {
	return r.client.Close()
}
