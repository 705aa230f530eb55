package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pkddi-mcp-server/internal/domain"
)

const cacheKeyPrefix = "pkddi:oracle:"

// ResponseStore is the shared cache tier consulted before the oracle is called
type ResponseStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// ResponseCache stores oracle completions in Redis
type ResponseCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// CachedResponse represents a cached completion with metadata
type CachedResponse struct {
	Response  string    `json:"response"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewResponseCache connects to Redis and verifies the connection
func NewResponseCache(config domain.CacheConfig) (*ResponseCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &ResponseCache{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// Get returns a cached completion. Corrupted or expired entries are removed and reported as misses.
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get oracle cache: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return "", false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return "", false, nil
	}

	return cached.Response, true, nil
}

// Set caches a completion; ttl 0 uses the default TTL
func (c *ResponseCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	data, err := json.Marshal(CachedResponse{
		Response:  value,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal oracle cache data: %w", err)
	}

	return c.redis.Set(ctx, key, data, ttl).Err()
}

// Close closes the Redis connection
func (c *ResponseCache) Close() error {
	return c.redis.Close()
}

// CacheKey derives the cache key of a prompt for a model
func CacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
