package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"tally/internal/platform/metrics"
)

const cacheKey = "tally:snapshot:latest"

// RedisCache is a read-through cache in front of another Store. Cache
// failures are logged and fall through to the backing store.
type RedisCache struct {
	client  redis.Cmdable
	next    Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRedisCache caches next's latest dataset in Redis for ttl.
func NewRedisCache(client redis.Cmdable, next Store, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *RedisCache {
	return &RedisCache{client: client, next: next, ttl: ttl, logger: logger, metrics: m}
}

// Save writes through to the backing store, then warms the cache.
func (c *RedisCache) Save(ctx context.Context, ds *Dataset) error {
	if err := c.next.Save(ctx, ds); err != nil {
		return err
	}
	c.warm(ctx, ds)
	return nil
}

func (c *RedisCache) Latest(ctx context.Context) (*Dataset, error) {
	start := time.Now()
	raw, err := c.client.Get(ctx, cacheKey).Bytes()
	c.metrics.ObserveStore("redis", "latest", time.Since(start))
	switch {
	case err == nil:
		ds, derr := decode(raw)
		if derr == nil {
			return ds, nil
		}
		c.warn(ctx, "discarding cached snapshot", derr)
	case !errors.Is(err, redis.Nil):
		c.warn(ctx, "snapshot cache read failed", err)
	}

	ds, err := c.next.Latest(ctx)
	if err != nil {
		return nil, err
	}
	c.warm(ctx, ds)
	return ds, nil
}

func (c *RedisCache) warm(ctx context.Context, ds *Dataset) {
	raw, err := encode(ds)
	if err != nil {
		c.warn(ctx, "snapshot cache encode failed", err)
		return
	}
	start := time.Now()
	err = c.client.Set(ctx, cacheKey, raw, c.ttl).Err()
	c.metrics.ObserveStore("redis", "save", time.Since(start))
	if err != nil {
		c.warn(ctx, "snapshot cache write failed", fmt.Errorf("set %s: %w", cacheKey, err))
	}
}

func (c *RedisCache) warn(ctx context.Context, msg string, err error) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, "error", err)
	}
}
