package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// RedisCache stores entries as JSON strings. Redis expires keys after the
// stale retention window; freshness within that window is judged from the
// entry timestamp like the other backends.
type RedisCache struct {
	rdb    goredis.UniversalClient
	prefix string
	opts   Options
}

// NewRedisCache wraps an existing client
func NewRedisCache(rdb goredis.UniversalClient, prefix string, opts Options) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix, opts: opts.withDefaults()}
}

func (r *RedisCache) Backend() string { return "redis" }

func (r *RedisCache) read(ctx context.Context, key string) (*Entry, error) {
	data, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("corrupt cache value: %w", err)
	}
	return &e, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (*Entry, bool) {
	e, err := r.read(ctx, key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			observe(r.opts.Logger, r.Backend(), key, "miss")
			return nil, false
		}
		r.opts.Logger.WithError(err).WarnWithFields("Redis cache GET failed, treating as miss", map[string]interface{}{
			"key": key,
		})
		observe(r.opts.Logger, r.Backend(), key, "error")
		return nil, false
	}
	if !r.opts.fresh(e) {
		observe(r.opts.Logger, r.Backend(), key, "stale")
		return nil, false
	}
	observe(r.opts.Logger, r.Backend(), key, "hit")
	return e, true
}

func (r *RedisCache) Peek(ctx context.Context, key string) (*Entry, bool) {
	e, err := r.read(ctx, key)
	if err != nil {
		return nil, false
	}
	return e, true
}

func (r *RedisCache) Put(ctx context.Context, key, source string, data json.RawMessage) error {
	encoded, err := json.Marshal(Entry{Data: data, Source: source, Timestamp: r.opts.Clock.Now()})
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.prefix+key, encoded, r.opts.StaleRetention).Err()
}

func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}

func (r *RedisCache) InvalidateAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
