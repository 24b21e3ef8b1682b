package cyplan

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/internal/cyplan/store"
	cacheopts "github.com/kart-io/cyplan/pkg/options/cache"
	dbopts "github.com/kart-io/cyplan/pkg/options/database"
	llmopts "github.com/kart-io/cyplan/pkg/options/llm"
	vectoropts "github.com/kart-io/cyplan/pkg/options/vector"
)

type vowelEmbedder struct{}

func (vowelEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 5)
	for _, r := range strings.ToLower(text) {
		if i := strings.IndexRune("aeiou", r); i >= 0 {
			v[i]++
		}
	}
	return v, nil
}

func (e vowelEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.EmbedSingle(ctx, t)
	}
	return out, nil
}

func (vowelEmbedder) Name() string { return "vowels" }

func TestClosersRunInReverse(t *testing.T) {
	var order []int
	var c closers
	for i := 1; i <= 3; i++ {
		c.add(func() { order = append(order, i) })
	}
	c.run()
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestOpenVectorIndexWithoutEmbedder(t *testing.T) {
	idx, closeFn, err := OpenVectorIndex(context.Background(), VectorDeps{Options: vectoropts.NewOptions()})
	require.NoError(t, err)
	assert.Nil(t, idx)
	require.NotNil(t, closeFn)
	closeFn()
}

func TestOpenVectorIndexLocal(t *testing.T) {
	ctx := context.Background()
	opts := vectoropts.NewOptions()
	opts.Backend = vectoropts.BackendLocal
	opts.Path = filepath.Join(t.TempDir(), "vectors")

	idx, closeFn, err := OpenVectorIndex(ctx, VectorDeps{
		Options:  opts,
		Database: dbopts.NewOptions(),
		Embedder: vowelEmbedder{},
	})
	require.NoError(t, err)
	defer closeFn()
	require.NotNil(t, idx)
	assert.FileExists(t, filepath.Join(opts.Path, localIndexFile))

	require.NoError(t, idx.Add(ctx, "docs", []store.Chunk{
		{Source: "a.txt", Index: 0, TotalChunks: 1, Content: "audit the access logs"},
	}))
	libs, err := idx.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, libs)
}

func TestOpenVectorIndexPGVectorNeedsPostgres(t *testing.T) {
	opts := vectoropts.NewOptions()
	opts.Backend = vectoropts.BackendPGVector
	db := dbopts.NewOptions()
	db.Driver = dbopts.DriverSQLite

	_, closeFn, err := OpenVectorIndex(context.Background(), VectorDeps{Options: opts, Database: db, Embedder: vowelEmbedder{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pgvector")
	closeFn()
}

func TestOpenRedis(t *testing.T) {
	ctx := context.Background()
	opts := cacheopts.NewOptions()
	assert.Nil(t, OpenRedis(ctx, opts))

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	opts.Enabled = true
	opts.Redis.Host = mr.Host()
	opts.Redis.Port = port

	client := OpenRedis(ctx, opts)
	require.NotNil(t, client)
	defer func() { _ = client.Close() }()
	assert.NotNil(t, cmdable(client))
	assert.Nil(t, cmdable(nil))
}

func TestNewContextCache(t *testing.T) {
	ctx := context.Background()
	opts := cacheopts.NewOptions()

	disabled := NewContextCache(nil, opts)
	require.NotNil(t, disabled)
	disabled.Set(ctx, "q", true, "ctx")
	_, ok := disabled.Get(ctx, "q", true)
	assert.False(t, ok)

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	opts.Enabled = true
	opts.Redis.Host = mr.Host()
	opts.Redis.Port = port
	client := OpenRedis(ctx, opts)
	require.NotNil(t, client)
	defer func() { _ = client.Close() }()

	cache := NewContextCache(client, opts)
	cache.Set(ctx, "q", true, "ctx")
	got, ok := cache.Get(ctx, "q", true)
	require.True(t, ok)
	assert.Equal(t, "ctx", got)
	cache.Invalidate(ctx)
	_, ok = cache.Get(ctx, "q", true)
	assert.False(t, ok)
}

func TestProvidersWithoutCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	chatOpts := llmopts.NewChatOptions()
	chatOpts.Provider = llmopts.ProviderOpenAI
	chatOpts.APIKey = ""
	chat, err := NewChatModel(chatOpts)
	require.NoError(t, err)
	assert.Nil(t, chat)

	embOpts := llmopts.NewEmbeddingOptions()
	embOpts.Provider = llmopts.ProviderOpenAI
	embOpts.APIKey = ""
	emb, err := NewEmbedder(embOpts, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, emb)
}

func TestPolicyForUsesMaxRetries(t *testing.T) {
	opts := llmopts.NewChatOptions()
	opts.MaxRetries = 7
	assert.Equal(t, 7, policyFor(opts).MaxAttempts)
}
