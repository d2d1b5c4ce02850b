// Package cache is a small Redis-backed JSON cache. With no address configured
// it runs an embedded miniredis so a single node needs no external Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/createarena/arena/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache miss")

type Cache struct {
	client    *redis.Client
	miniRedis *miniredis.Miniredis
}

// New connects to redisAddr, or starts an embedded Redis when it is empty.
func New(redisAddr string) (*Cache, error) {
	if redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded Redis: %w", err)
		}
		logger.Info("Embedded Redis started on", mr.Addr())
		return &Cache{client: redis.NewClient(&redis.Options{Addr: mr.Addr()}), miniRedis: mr}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", redisAddr, err)
	}
	logger.Info("Connected to external Redis at", redisAddr)
	return &Cache{client: client}, nil
}

// IsEmbedded reports whether the cache runs on the in-process Redis.
func (c *Cache) IsEmbedded() bool {
	return c.miniRedis != nil
}

func (c *Cache) Close() error {
	err := c.client.Close()
	if c.miniRedis != nil {
		c.miniRedis.Close()
	}
	return err
}

func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	result, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return result, err
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// DeletePattern removes all keys matching a glob pattern.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}
