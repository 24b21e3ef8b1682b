package biz

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/cyplan/internal/pkg/textutil"
)

// ContextCacheConfig configures the retrieval-context cache.
type ContextCacheConfig struct {
	Enabled   bool
	TTL       time.Duration
	KeyPrefix string
}

// ContextCache caches assembled retrieval contexts in redis, keyed by the md5
// of the question and the vector flag.
type ContextCache struct {
	redis  goredis.Cmdable
	config ContextCacheConfig
}

// NewContextCache creates a cache. A nil client or a disabled config makes
// every lookup miss and every store a no-op.
func NewContextCache(rdb goredis.Cmdable, config ContextCacheConfig) *ContextCache {
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "cyplan:"
	}
	return &ContextCache{redis: rdb, config: config}
}

func (c *ContextCache) enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

func (c *ContextCache) key(question string, useVector bool) string {
	mode := "kb"
	if useVector {
		mode = "kbv"
	}
	return c.config.KeyPrefix + "ctx:" + mode + ":" + textutil.HashString(question)
}

// Get returns the cached context and whether it was found.
func (c *ContextCache) Get(ctx context.Context, question string, useVector bool) (string, bool) {
	if !c.enabled() {
		return "", false
	}
	key := c.key(question, useVector)
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		logger.Debugw("context cache miss", "key", key)
		return "", false
	}
	if err != nil {
		logger.Warnw("failed to get from context cache", "error", err.Error(), "key", key)
		return "", false
	}
	return val, true
}

// Set stores a context for the cache TTL.
func (c *ContextCache) Set(ctx context.Context, question string, useVector bool, value string) {
	if !c.enabled() {
		return
	}
	key := c.key(question, useVector)
	if err := c.redis.Set(ctx, key, value, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set context cache", "error", err.Error(), "key", key)
	}
}

// Clear deletes every cached context and returns how many keys were removed.
func (c *ContextCache) Clear(ctx context.Context) (int, error) {
	if !c.enabled() {
		return 0, nil
	}
	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"ctx:*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	logger.Infow("cleared context cache", "deleted_count", deleted)
	return deleted, nil
}

// Invalidate clears the cache, logging rather than returning failures.
func (c *ContextCache) Invalidate(ctx context.Context) {
	if _, err := c.Clear(ctx); err != nil {
		logger.Warnw("failed to invalidate context cache", "error", err.Error())
	}
}
