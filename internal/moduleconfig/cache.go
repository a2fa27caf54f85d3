package moduleconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "erpbridge:modcfg:"
	purgeBatchSize = 100
)

// Cache stores resolved configurations by key.
type Cache interface {
	Get(ctx context.Context, key string) (Resolved, bool, error)
	Set(ctx context.Context, key string, value Resolved) error
	// Purge drops every cached resolution.
	Purge(ctx context.Context) error
}

func cacheKey(provider, module string, tenantID *uuid.UUID) string {
	tenant := "-"
	if tenantID != nil {
		tenant = tenantID.String()
	}
	return cacheKeyPrefix + provider + ":" + tenant + ":" + module
}

// RedisCache keeps resolutions in Redis as JSON with a fixed TTL.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Resolved, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Resolved{}, false, nil
	}
	if err != nil {
		return Resolved{}, false, err
	}
	var out Resolved
	if err := json.Unmarshal(raw, &out); err != nil {
		return Resolved{}, false, fmt.Errorf("decode cached module config %q: %w", key, err)
	}
	return out, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value Resolved) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

func (c *RedisCache) Purge(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, cacheKeyPrefix+"*", purgeBatchSize).Iterator()
	batch := make([]string, 0, purgeBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == purgeBatchSize {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

// OpenRedis connects to the Redis server at rawURL and checks it is reachable.
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}
