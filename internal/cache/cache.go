// Package cache stores read results per table in redis hashes.
//
// Every table has one hash; each field is a query key and each value the JSON
// encoded result. A write to a table drops the whole hash. Authorization
// decisions are never cached here.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache is a per-table result cache.
type Cache interface {
	// Get returns the cached value, or ok=false on a miss.
	Get(ctx context.Context, table, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, table, key string, value []byte, ttl time.Duration) error
	// Invalidate drops every cached result of table.
	Invalidate(ctx context.Context, table string) error
}

// Key builds a deterministic cache key from query parameters.
func Key(params any) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("cache: key: %w", err)
	}
	return string(b), nil
}

// RedisCache implements Cache on redis hashes.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "crudgate:"}
}

// Dial connects to the redis server at url (redis://host:port/db) and
// checks the connection.
func Dial(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisCache(client), nil
}

func (c *RedisCache) hash(table string) string { return c.prefix + table }

func (c *RedisCache) Get(ctx context.Context, table, key string) ([]byte, bool, error) {
	b, err := c.client.HGet(ctx, c.hash(table), key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget failed: %w", err)
	}
	return b, true, nil
}

// Set stores value and (re)arms the table hash expiry.
func (c *RedisCache) Set(ctx context.Context, table, key string, value []byte, ttl time.Duration) error {
	h := c.hash(table)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, h, key, value)
		if ttl > 0 {
			p.Expire(ctx, h, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, table string) error {
	if err := c.client.Del(ctx, c.hash(table)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error { return c.client.Close() }

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string, string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) Set(context.Context, string, string, []byte, time.Duration) error { return nil }

func (Nop) Invalidate(context.Context, string) error { return nil }
