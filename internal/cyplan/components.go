package cyplan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/cyplan/internal/cyplan/biz"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/component/database"
	"github.com/kart-io/cyplan/pkg/component/milvus"
	"github.com/kart-io/cyplan/pkg/component/redis"
	"github.com/kart-io/cyplan/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/cyplan/pkg/llm/anthropic"
	_ "github.com/kart-io/cyplan/pkg/llm/deepseek"
	_ "github.com/kart-io/cyplan/pkg/llm/ollama"
	_ "github.com/kart-io/cyplan/pkg/llm/openai"
	"github.com/kart-io/cyplan/pkg/llm/resilience"
	cacheopts "github.com/kart-io/cyplan/pkg/options/cache"
	dbopts "github.com/kart-io/cyplan/pkg/options/database"
	llmopts "github.com/kart-io/cyplan/pkg/options/llm"
	vectoropts "github.com/kart-io/cyplan/pkg/options/vector"
)

// localIndexFile is the sqlite file of the local vector backend inside
// the configured vector path.
const localIndexFile = "chunks.db"

// closers runs cleanup functions in reverse registration order.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// OpenRedis connects the shared cache client. It returns nil when caching
// is disabled or redis is unreachable, in which case every cache misses.
func OpenRedis(ctx context.Context, opts *cacheopts.Options) *redis.Client {
	if opts == nil || !opts.Enabled {
		logger.Info("Cache is disabled")
		return nil
	}
	client, err := redis.New(ctx, opts.Redis)
	if err != nil {
		logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
		return nil
	}
	logger.Infow("Redis cache initialized", "addr", opts.Redis.Addr(), "ttl", opts.TTL)
	return client
}

// NewContextCache creates the retrieval-context cache on rdb. A nil rdb
// yields a cache that never hits.
func NewContextCache(rdb *redis.Client, opts *cacheopts.Options) *biz.ContextCache {
	return biz.NewContextCache(cmdable(rdb), biz.ContextCacheConfig{
		Enabled:   rdb != nil,
		TTL:       opts.TTL,
		KeyPrefix: opts.KeyPrefix,
	})
}

func cmdable(c *redis.Client) goredis.Cmdable {
	if c == nil {
		return nil
	}
	return c.Client()
}

func policyFor(opts *llmopts.ProviderOptions) resilience.Policy {
	p := resilience.DefaultPolicy()
	if opts.MaxRetries > 0 {
		p.MaxAttempts = opts.MaxRetries
	}
	return p
}

// NewChatModel creates the chat provider with retries and a circuit
// breaker. It returns nil without error when no credentials are configured.
func NewChatModel(opts *llmopts.ProviderOptions) (llm.ChatProvider, error) {
	if !opts.Configured() {
		logger.Warnw("chat provider is not configured, replies use a canned message", "provider", opts.Provider)
		return nil, nil
	}
	chat, err := llm.NewChatProvider(opts.Provider, opts.ToConfigMap())
	if errors.Is(err, llm.ErrNotConfigured) {
		logger.Warnw("chat provider is not configured", "provider", opts.Provider, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized", "provider", opts.Provider, "model", opts.Model)
	return resilience.WrapChat(chat, policyFor(opts)), nil
}

// NewEmbedder creates the embedding provider, cached in redis when rdb is
// set. It returns nil without error when no credentials are configured.
func NewEmbedder(opts *llmopts.ProviderOptions, rdb *redis.Client, cache *cacheopts.Options) (llm.EmbeddingProvider, error) {
	if !opts.Configured() {
		logger.Warnw("embedding provider is not configured, document retrieval is disabled", "provider", opts.Provider)
		return nil, nil
	}
	embedder, err := llm.NewEmbeddingProvider(opts.Provider, opts.ToConfigMap())
	if errors.Is(err, llm.ErrNotConfigured) {
		logger.Warnw("embedding provider is not configured", "provider", opts.Provider, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	embedder = resilience.WrapEmbedding(embedder, policyFor(opts))
	if rdb != nil && cache != nil {
		embedder = llm.NewCachedEmbeddingProvider(embedder, rdb.Client(), cache.EmbeddingTTL, cache.KeyPrefix+"emb:")
	}
	logger.Infow("Embedding provider initialized", "provider", opts.Provider, "model", opts.Model)
	return embedder, nil
}

// VectorDeps are the inputs of OpenVectorIndex.
type VectorDeps struct {
	Options  *vectoropts.Options
	Database *dbopts.Options
	// DB is the main connection, reused by pgvector when no separate DSN
	// is configured.
	DB       *database.Client
	Embedder llm.EmbeddingProvider
}

// OpenVectorIndex opens the configured vector backend. A nil embedder
// yields a nil index. The returned close function is never nil.
func OpenVectorIndex(ctx context.Context, deps VectorDeps) (store.VectorIndex, func(), error) {
	noop := func() {}
	if deps.Embedder == nil {
		return nil, noop, nil
	}
	opts := deps.Options

	switch opts.Backend {
	case vectoropts.BackendMilvus:
		client, err := milvus.New(ctx, opts.Milvus)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		closeFn := func() { _ = client.Close(context.Background()) }
		idx, err := store.NewMilvusIndex(ctx, client, deps.Embedder, opts.Collection, opts.Dimension)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		logger.Infow("Vector index initialized", "backend", opts.Backend, "address", opts.Milvus.Address, "collection", opts.Collection)
		return idx, closeFn, nil

	case vectoropts.BackendPGVector:
		client, closeFn := deps.DB, noop
		if opts.PGVectorDSN != "" {
			pgOpts := *deps.Database
			pgOpts.Driver, pgOpts.DSN = dbopts.DriverPostgres, opts.PGVectorDSN
			c, err := database.New(ctx, &pgOpts)
			if err != nil {
				return nil, noop, fmt.Errorf("failed to open pgvector database: %w", err)
			}
			client, closeFn = c, func() { _ = c.Close() }
		} else if client == nil || deps.Database.Driver != dbopts.DriverPostgres {
			return nil, noop, fmt.Errorf("pgvector backend requires a postgres database or vector.pgvector-dsn")
		}
		idx, err := store.NewPGVectorIndex(ctx, client.DB(), deps.Embedder, opts.Collection, opts.Dimension)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		logger.Infow("Vector index initialized", "backend", opts.Backend, "table", opts.Collection)
		return idx, closeFn, nil

	default:
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, noop, fmt.Errorf("failed to create vector path: %w", err)
		}
		c, err := database.New(ctx, &dbopts.Options{
			Driver:   dbopts.DriverSQLite,
			DSN:      filepath.Join(opts.Path, localIndexFile),
			LogLevel: deps.Database.LogLevel,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open local vector index: %w", err)
		}
		closeFn := func() { _ = c.Close() }
		idx, err := store.NewLocalIndex(ctx, c.DB(), deps.Embedder)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		logger.Infow("Vector index initialized", "backend", vectoropts.BackendLocal, "path", opts.Path)
		return idx, closeFn, nil
	}
}
