package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RateKey identifies a cached rate.
type RateKey struct {
	From string
	To   string
	Date time.Time
}

func (k RateKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.From, k.To, k.Date.Format("2006-01-02"))
}

func pairKey(from, to string) string {
	return from + ":" + to
}

// RateCache is a TTL cache of resolved rates, independent of the rate store.
type RateCache interface {
	Get(ctx context.Context, key RateKey) (decimal.Decimal, bool, error)
	Set(ctx context.Context, key RateKey, rate decimal.Decimal) error
	// Invalidate drops every cached date of the pair.
	Invalidate(ctx context.Context, from, to string) error
}

// MemoryCache is an in-process expiring LRU.
type MemoryCache struct {
	lru *expirable.LRU[RateKey, decimal.Decimal]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{lru: expirable.NewLRU[RateKey, decimal.Decimal](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key RateKey) (decimal.Decimal, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key RateKey, rate decimal.Decimal) error {
	c.lru.Add(key, rate)
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, from, to string) error {
	for _, k := range c.lru.Keys() {
		if k.From == from && k.To == to {
			c.lru.Remove(k)
		}
	}
	return nil
}

// RedisCache shares rates across instances. Keys of one pair are tracked in a
// set so the pair can be invalidated without SCAN.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "ExchangeRate:"}
}

func (c *RedisCache) Get(ctx context.Context, key RateKey) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key RateKey, rate decimal.Decimal) error {
	k := c.prefix + key.String()
	setKey := c.prefix + "pair:" + pairKey(key.From, key.To)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, k, rate.String(), c.ttl)
	pipe.SAdd(ctx, setKey, k)
	pipe.Expire(ctx, setKey, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, from, to string) error {
	setKey := c.prefix + "pair:" + pairKey(from, to)
	members, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	keys := append(members, setKey)
	return c.client.Del(ctx, keys...).Err()
}
