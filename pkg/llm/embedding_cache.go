package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/cyplan/pkg/utils/json"
)

// CachedEmbeddingProvider 为 EmbeddingProvider 增加 Redis 结果缓存。
// 缓存键包含供应商名称与文本哈希，切换供应商不会读到维度不同的旧向量。
// Redis 故障只降级为直接调用底层供应商。
type CachedEmbeddingProvider struct {
	provider  EmbeddingProvider
	redis     goredis.Cmdable
	ttl       time.Duration
	keyPrefix string
}

// NewCachedEmbeddingProvider 创建带缓存的 Embedding Provider。rdb 为 nil 时不缓存。
func NewCachedEmbeddingProvider(provider EmbeddingProvider, rdb goredis.Cmdable, ttl time.Duration, keyPrefix string) *CachedEmbeddingProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbeddingProvider{
		provider:  provider,
		redis:     rdb,
		ttl:       ttl,
		keyPrefix: keyPrefix + "emb:" + provider.Name() + ":",
	}
}

func (c *CachedEmbeddingProvider) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return c.keyPrefix + hex.EncodeToString(hash[:])
}

func (c *CachedEmbeddingProvider) lookup(ctx context.Context, text string) ([]float32, bool) {
	key := c.cacheKey(text)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.Warnw("redis get error, falling back to provider", "error", err.Error())
		}
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		logger.Warnw("corrupt cached embedding, deleting", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return embedding, true
}

func (c *CachedEmbeddingProvider) store(ctx context.Context, text string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.cacheKey(text), data, c.ttl).Err(); err != nil {
		logger.Warnw("failed to cache embedding", "error", err.Error())
	}
}

// EmbedSingle 生成单个文本的 Embedding（带缓存）。
func (c *CachedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if c.redis == nil {
		return c.provider.EmbedSingle(ctx, text)
	}
	if embedding, ok := c.lookup(ctx, text); ok {
		return embedding, nil
	}

	embedding, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, text, embedding)
	return embedding, nil
}

// Embed 批量生成 Embedding，只把未命中的文本交给底层供应商。
func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.redis == nil {
		return c.provider.Embed(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if embedding, ok := c.lookup(ctx, text); ok {
			embeddings[i] = embedding
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		logger.Debugw("all embeddings from cache", "total", len(texts))
		return embeddings, nil
	}

	logger.Debugw("embedding cache miss", "total", len(texts), "uncached", len(missTexts))
	fresh, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%s: 向量数量不匹配: 期望 %d, 实际 %d", c.provider.Name(), len(missTexts), len(fresh))
	}
	for i, idx := range missIdx {
		embeddings[idx] = fresh[i]
		c.store(ctx, missTexts[i], fresh[i])
	}
	return embeddings, nil
}

// Name 返回底层 provider 的名称。
func (c *CachedEmbeddingProvider) Name() string {
	return c.provider.Name()
}

// ClearCache 删除本供应商的全部缓存向量，返回删除数量。
func (c *CachedEmbeddingProvider) ClearCache(ctx context.Context) (int, error) {
	if c.redis == nil {
		return 0, nil
	}
	iter := c.redis.Scan(ctx, 0, c.keyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err == nil {
			deleted++
		}
	}
	return deleted, iter.Err()
}

var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)
