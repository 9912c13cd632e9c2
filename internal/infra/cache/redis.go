// Package cache keeps storefront price responses in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Spok95/decant-pricing/internal/pricing"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

var _ pricing.PriceCache = (*Redis)(nil)

// Connect pings the server so a misconfigured cache is reported at startup.
func Connect(ctx context.Context, o Options, log *slog.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return New(rdb, o.TTL, o.Prefix, log), nil
}

func New(rdb *redis.Client, ttl time.Duration, prefix string, log *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if prefix == "" {
		prefix = "decant:prices:"
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix, log: log}
}

func (c *Redis) key(productID int64) string {
	return fmt.Sprintf("%s%d", c.prefix, productID)
}

func (c *Redis) Get(ctx context.Context, productID int64) (*pricing.ProductPrices, bool) {
	val, err := c.rdb.Get(ctx, c.key(productID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("cache get failed", "product_id", productID, "err", err)
		}
		return nil, false
	}
	var out pricing.ProductPrices
	if err := json.Unmarshal(val, &out); err != nil {
		c.log.Warn("cache entry corrupt", "product_id", productID, "err", err)
		return nil, false
	}
	return &out, true
}

func (c *Redis) Set(ctx context.Context, p *pricing.ProductPrices) {
	data, err := json.Marshal(p)
	if err != nil {
		c.log.Warn("cache encode failed", "product_id", p.ProductID, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, c.key(p.ProductID), data, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", "product_id", p.ProductID, "err", err)
	}
}

func (c *Redis) Invalidate(ctx context.Context, productID int64) {
	if err := c.rdb.Del(ctx, c.key(productID)).Err(); err != nil {
		c.log.Warn("cache invalidate failed", "product_id", productID, "err", err)
	}
}

func (c *Redis) Close() error { return c.rdb.Close() }
