package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PageCache provides Redis-backed caching of fetched listing pages so that
// re-running the same search within the TTL does not refetch them.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at the given URL and returns a PageCache.
// URL format: redis://localhost:6379/0
func New(ctx context.Context, redisURL string, ttl time.Duration) (*PageCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &PageCache{client: client, ttl: ttl}, nil
}

// Get returns the cached body for url, and false on a miss or any error.
func (c *PageCache) Get(ctx context.Context, url string) ([]byte, bool) {
	data, err := c.client.Get(ctx, buildKey(url)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores body under url with the configured TTL.
func (c *PageCache) Set(ctx context.Context, url string, body []byte) error {
	if err := c.client.Set(ctx, buildKey(url), body, c.ttl).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *PageCache) Close() error {
	return c.client.Close()
}

func buildKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return fmt.Sprintf("jobscout:page:%x", hash[:12])
}
