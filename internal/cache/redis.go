// Package cache keeps fetched register days in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trfc-backend/internal/register"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

// RedisCache stores days as JSON under a per-shop generation. Bumping the
// generation orphans every cached day of the shop; the TTL reaps them.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func generationKey(shopID uuid.UUID) string {
	return fmt.Sprintf("register:%s:gen", shopID)
}

func dayKey(shopID uuid.UUID, gen int64, date register.Date) string {
	return fmt.Sprintf("register:%s:g%d:%s", shopID, gen, date.String())
}

func (c *RedisCache) generation(ctx context.Context, shopID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(shopID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) Get(ctx context.Context, shopID uuid.UUID, date register.Date) (*register.Day, int64, error) {
	gen, err := c.generation(ctx, shopID)
	if err != nil {
		return nil, 0, fmt.Errorf("read generation: %w", err)
	}
	raw, err := c.client.Get(ctx, dayKey(shopID, gen, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, nil
	}
	if err != nil {
		return nil, gen, fmt.Errorf("read day: %w", err)
	}
	var day register.Day
	if err := json.Unmarshal(raw, &day); err != nil {
		return nil, gen, fmt.Errorf("decode day: %w", err)
	}
	return &day, gen, nil
}

// Set stores day under gen, the generation its lookup saw. If the shop was
// invalidated since, the entry is written to a key no Get will read.
func (c *RedisCache) Set(ctx context.Context, day register.Day, gen int64) error {
	raw, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("encode day: %w", err)
	}
	return c.client.Set(ctx, dayKey(day.ShopID, gen, day.LogDate), raw, c.ttl).Err()
}

func (c *RedisCache) InvalidateShop(ctx context.Context, shopID uuid.UUID) error {
	return c.client.Incr(ctx, generationKey(shopID)).Err()
}

// Health pings Redis.
func (c *RedisCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Noop is used when Redis is not configured.
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID, register.Date) (*register.Day, int64, error) {
	return nil, 0, nil
}

func (Noop) Set(context.Context, register.Day, int64) error { return nil }

func (Noop) InvalidateShop(context.Context, uuid.UUID) error { return nil }

// Locks hands out short-lived Redis locks keyed by (shop, date).
type Locks struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewLocks(client redis.UniversalClient, ttl time.Duration) *Locks {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locks{client: redislock.New(client), ttl: ttl}
}

func lockKey(shopID uuid.UUID, date register.Date) string {
	return fmt.Sprintf("lock:register:%s:%s", shopID, date.String())
}

func (l *Locks) Lock(ctx context.Context, shopID uuid.UUID, date register.Date) (func(), error) {
	lock, err := l.client.Obtain(ctx, lockKey(shopID, date), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
