package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache wraps a Provider and keeps each snapshot in Redis for ttl.
// Redis failures fall through to the upstream provider.
type Cache struct {
	upstream Provider
	rdb      *redis.Client
	prefix   string
	ttl      time.Duration
	logger   *zap.Logger
}

// NewCache creates a caching Provider. Keys are prefix + data type.
func NewCache(upstream Provider, rdb *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{upstream: upstream, rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *Cache) Current(ctx context.Context) (*Document, error) {
	return c.cached(ctx, DataTypeLive, c.upstream.Current)
}

func (c *Cache) Forecast(ctx context.Context) (*Document, error) {
	return c.cached(ctx, DataTypeForecast, c.upstream.Forecast)
}

func (c *Cache) History(ctx context.Context) (*Document, error) {
	return c.cached(ctx, DataTypeHistory, c.upstream.History)
}

func (c *Cache) cached(ctx context.Context, kind string, fetch func(context.Context) (*Document, error)) (*Document, error) {
	key := c.prefix + kind

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var doc Document
		if jerr := json.Unmarshal(raw, &doc); jerr == nil {
			return &doc, nil
		}
		c.logger.Warn("realtime cache entry unreadable", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("realtime cache get failed", zap.String("key", key), zap.Error(err))
	}

	doc, err := fetch(ctx)
	if err != nil || doc == nil {
		return doc, err
	}
	data, err := json.Marshal(doc)
	if err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("realtime cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return doc, nil
}
