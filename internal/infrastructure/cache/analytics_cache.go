package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/infrastructure/config"
)

const analyticsKeyPrefix = "billing:analytics:"

// AnalyticsCache stores computed billing analytics keyed by query range.
// Misses are never an error; the caller recomputes and sets.
type AnalyticsCache interface {
	Get(ctx context.Context, key string) (*billing.Analytics, bool)
	Set(ctx context.Context, key string, analytics billing.Analytics, ttl time.Duration)
	Invalidate(ctx context.Context)
}

// RedisAnalyticsCache implements AnalyticsCache using Redis
type RedisAnalyticsCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisAnalyticsCache creates a Redis-backed analytics cache and verifies
// the connection
func NewRedisAnalyticsCache(cfg *config.RedisConfig, logger *zap.Logger) (*RedisAnalyticsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisAnalyticsCache{client: client, logger: logger.Named("analytics_cache")}, nil
}

// Get returns the cached analytics for the key, if present
func (c *RedisAnalyticsCache) Get(ctx context.Context, key string) (*billing.Analytics, bool) {
	data, err := c.client.Get(ctx, analyticsKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var analytics billing.Analytics
	if err := json.Unmarshal(data, &analytics); err != nil {
		c.logger.Warn("analytics cache entry undecodable, dropping", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, analyticsKeyPrefix+key)
		return nil, false
	}
	return &analytics, true
}

// Set stores the analytics under the key with the given TTL. Failures are
// logged and swallowed; the cache is advisory.
func (c *RedisAnalyticsCache) Set(ctx context.Context, key string, analytics billing.Analytics, ttl time.Duration) {
	data, err := json.Marshal(analytics)
	if err != nil {
		c.logger.Warn("analytics cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, analyticsKeyPrefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached analytics entry
func (c *RedisAnalyticsCache) Invalidate(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, analyticsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("analytics cache invalidation scan failed", zap.Error(err))
	}
}

// Close releases the Redis connection
func (c *RedisAnalyticsCache) Close() error {
	return c.client.Close()
}

// inMemoryEntry is a cached value with its expiry
type inMemoryEntry struct {
	analytics billing.Analytics
	expiresAt time.Time
}

// InMemoryAnalyticsCache implements AnalyticsCache with a process-local map.
// Suitable for single-instance deployments and testing.
type InMemoryAnalyticsCache struct {
	mu      sync.RWMutex
	entries map[string]inMemoryEntry
}

// NewInMemoryAnalyticsCache creates an empty in-memory analytics cache
func NewInMemoryAnalyticsCache() *InMemoryAnalyticsCache {
	return &InMemoryAnalyticsCache{entries: make(map[string]inMemoryEntry)}
}

// Get returns the cached analytics for the key, if present and unexpired
func (c *InMemoryAnalyticsCache) Get(_ context.Context, key string) (*billing.Analytics, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	analytics := entry.analytics
	return &analytics, true
}

// Set stores the analytics under the key with the given TTL
func (c *InMemoryAnalyticsCache) Set(_ context.Context, key string, analytics billing.Analytics, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = inMemoryEntry{analytics: analytics, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Invalidate drops every cached entry
func (c *InMemoryAnalyticsCache) Invalidate(_ context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]inMemoryEntry)
	c.mu.Unlock()
}

// NewAnalyticsCache creates a Redis cache when enabled, falling back to the
// in-memory cache when Redis is disabled or unreachable.
func NewAnalyticsCache(cfg *config.RedisConfig, logger *zap.Logger) AnalyticsCache {
	if !cfg.Enabled {
		return NewInMemoryAnalyticsCache()
	}
	redisCache, err := NewRedisAnalyticsCache(cfg, logger)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory analytics cache. "+
			"Cached analytics will not be shared across instances.",
			zap.Error(err))
		return NewInMemoryAnalyticsCache()
	}
	logger.Info("using Redis analytics cache")
	return redisCache
}

// Ensure both implementations satisfy AnalyticsCache
var (
	_ AnalyticsCache = (*RedisAnalyticsCache)(nil)
	_ AnalyticsCache = (*InMemoryAnalyticsCache)(nil)
)
