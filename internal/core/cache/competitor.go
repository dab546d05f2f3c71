// Package cache provides a shared Redis cache in front of slow fact sources.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/rules"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

/*
 * Competitor price cache.
 *
 * CompetitorPrices decorates a rules.CompetitorPriceSource. Hits are served
 * from Redis; concurrent misses for one key collapse into a single source
 * call (singleflight) whose answer is written back with a TTL. "Not listed"
 * is cached too, as the value "-".
 *
 * Redis is best-effort: read or write failures are logged and the source
 * is consulted directly. Source errors are never cached.
 */

// DefaultTTL is how long a cached competitor price stays valid.
const DefaultTTL = 5 * time.Minute

const notListed = "-"

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// CompetitorPrices is a caching rules.CompetitorPriceSource.
type CompetitorPrices struct {
	next   rules.CompetitorPriceSource
	rdb    redisClient
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

type cachedPrice struct {
	price decimal.Decimal
	ok    bool
}

// NewCompetitorPrices wraps next with a Redis cache. Non-positive ttl uses DefaultTTL.
func NewCompetitorPrices(next rules.CompetitorPriceSource, rdb redisClient, ttl time.Duration, logger *zap.Logger) *CompetitorPrices {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompetitorPrices{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func competitorKey(productID, competitorID string) string {
	return "pk:competitor:" + productID + ":" + competitorID
}

// CompetitorPrice implements rules.CompetitorPriceSource.
func (c *CompetitorPrices) CompetitorPrice(ctx context.Context, productID, competitorID string) (decimal.Decimal, bool, error) {
	key := competitorKey(productID, competitorID)

	if v, ok := c.read(ctx, key); ok {
		return v.price, v.ok, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		price, ok, err := c.next.CompetitorPrice(ctx, productID, competitorID)
		if err != nil {
			return nil, err
		}
		c.write(ctx, key, cachedPrice{price: price, ok: ok})
		return cachedPrice{price: price, ok: ok}, nil
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	v := res.(cachedPrice)
	return v.price, v.ok, nil
}

// Forget drops a cached entry, e.g. after a new competitor price was observed.
func (c *CompetitorPrices) Forget(ctx context.Context, productID, competitorID string) error {
	return c.rdb.Del(ctx, competitorKey(productID, competitorID)).Err()
}

func (c *CompetitorPrices) read(ctx context.Context, key string) (cachedPrice, bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return cachedPrice{}, false
	}
	if err != nil {
		c.logger.Warn("competitor cache read failed", zap.String("key", key), zap.Error(err))
		return cachedPrice{}, false
	}
	if val == notListed {
		return cachedPrice{}, true
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		c.logger.Warn("corrupt competitor cache entry", zap.String("key", key), zap.String("value", val))
		return cachedPrice{}, false
	}
	return cachedPrice{price: price, ok: true}, true
}

func (c *CompetitorPrices) write(ctx context.Context, key string, v cachedPrice) {
	val := notListed
	if v.ok {
		val = v.price.String()
	}
	if err := c.rdb.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Warn("competitor cache write failed", zap.String("key", key), zap.Error(err))
	}
}
