package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/pkg/component/milvus"
	"github.com/kart-io/cyplan/pkg/utils/errors"
)

// letterEmbedder maps text to letter frequencies, so texts sharing words
// land close together.
type letterEmbedder struct {
	calls int
}

func (e *letterEmbedder) embed(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func (e *letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *letterEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *letterEmbedder) Name() string { return "letters" }

func docChunks(source string, contents ...string) []Chunk {
	out := make([]Chunk, len(contents))
	for i, c := range contents {
		out[i] = Chunk{Source: source, Index: i, TotalChunks: len(contents), Content: c}
	}
	return out
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 1}))
}

func TestLocalIndexRequiresEmbedder(t *testing.T) {
	_, err := NewLocalIndex(context.Background(), newTestDB(t), nil)
	assert.ErrorIs(t, err, errors.ErrEmbeddingNotConfigured)
}

func TestLocalIndexAddSearch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	idx, err := NewLocalIndex(ctx, db, &letterEmbedder{})
	require.NoError(t, err)

	require.NoError(t, idx.Add(ctx, "policies", docChunks("access.md",
		"zzzz zzzz", "password rotation policy", "xyz")))
	require.NoError(t, idx.Add(ctx, "ai", docChunks("poison.txt", "password")))

	hits, err := idx.Search(ctx, "password policy", 2, "policies")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "policies_access.md_1", hits[0].ID)
	assert.Equal(t, "access.md", hits[0].Source)
	assert.Equal(t, 1, hits[0].ChunkIndex)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)
	for _, h := range hits {
		assert.Equal(t, "policies", h.Library)
	}

	all, err := idx.Search(ctx, "password", 10, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "ai_poison.txt_0", all[0].ID)

	none, err := idx.Search(ctx, "password", 5, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	zero, err := idx.Search(ctx, "password", 0, "")
	require.NoError(t, err)
	assert.Empty(t, zero)
}

func TestLocalIndexReAddOverwrites(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	idx, err := NewLocalIndex(ctx, db, &letterEmbedder{})
	require.NoError(t, err)

	require.NoError(t, idx.Add(ctx, "lib", docChunks("a.txt", "first", "second")))
	require.NoError(t, idx.Add(ctx, "lib", docChunks("a.txt", "first v2", "second v2")))
	assert.EqualValues(t, 2, count(t, db, &model.DocumentChunk{}))

	var row model.DocumentChunk
	require.NoError(t, db.Where("id = ?", "lib_a.txt_0").First(&row).Error)
	assert.Equal(t, "first v2", row.Content)
}

func TestLocalIndexLibraries(t *testing.T) {
	ctx := context.Background()
	idx, err := NewLocalIndex(ctx, newTestDB(t), &letterEmbedder{})
	require.NoError(t, err)

	libs, err := idx.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Empty(t, libs)

	for _, lib := range []string{"zeta", "alpha", "mid", "alpha"} {
		require.NoError(t, idx.Add(ctx, lib, docChunks(lib+".md", "text "+lib)))
	}
	libs, err = idx.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, libs)

	deleted, err := idx.DeleteLibrary(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = idx.DeleteLibrary(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, deleted)

	libs, err = idx.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mid", "zeta"}, libs)
}

func TestEmbedChunksBatches(t *testing.T) {
	e := &letterEmbedder{}
	contents := make([]string, embedBatchSize+5)
	for i := range contents {
		contents[i] = fmt.Sprintf("chunk %d", i)
	}
	vecs, err := embedChunks(context.Background(), e, docChunks("s", contents...))
	require.NoError(t, err)
	assert.Len(t, vecs, len(contents))
	assert.Equal(t, 2, e.calls)
}

type fakeMilvus struct {
	schema      *milvus.CollectionSchema
	rows        map[string]map[string]any
	order       []string
	scanBatches int
}

func newFakeMilvus() *fakeMilvus {
	return &fakeMilvus{rows: map[string]map[string]any{}}
}

func (f *fakeMilvus) EnsureCollection(_ context.Context, schema *milvus.CollectionSchema) error {
	f.schema = schema
	return nil
}

func (f *fakeMilvus) Upsert(_ context.Context, _ string, data *milvus.UpsertData) error {
	for i, rowID := range data.IDs {
		row := map[string]any{"id": rowID, "embedding": data.Embeddings[i]}
		for field, values := range data.Metadata {
			row[field] = values[i]
		}
		if _, ok := f.rows[rowID]; !ok {
			f.order = append(f.order, rowID)
		}
		f.rows[rowID] = row
	}
	return nil
}

// match understands the two filter shapes MilvusIndex issues.
func (f *fakeMilvus) match(row map[string]any, filter string) bool {
	if filter == "" || filter == `id != ""` {
		return true
	}
	lib, err := strconv.Unquote(strings.TrimPrefix(filter, fieldLibrary+" == "))
	if err != nil {
		return false
	}
	return row[fieldLibrary] == lib
}

func (f *fakeMilvus) Search(_ context.Context, _ string, vector []float32, topK int, filter string, _ []string) ([]milvus.SearchResult, error) {
	var out []milvus.SearchResult
	for _, rowID := range f.order {
		row, ok := f.rows[rowID]
		if !ok || !f.match(row, filter) {
			continue
		}
		out = append(out, milvus.SearchResult{
			ID:       rowID,
			Score:    float32(1 - CosineDistance(vector, row["embedding"].([]float32))),
			Metadata: row,
		})
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeMilvus) QueryStrings(_ context.Context, _, filter, field string, limit int) ([]string, error) {
	var out []string
	for _, rowID := range f.order {
		row, ok := f.rows[rowID]
		if !ok || !f.match(row, filter) {
			continue
		}
		out = append(out, row[field].(string))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMilvus) ScanStrings(_ context.Context, _, filter, field string, batchSize int, fn func([]string) error) error {
	var batch []string
	for _, rowID := range f.order {
		row, ok := f.rows[rowID]
		if !ok || !f.match(row, filter) {
			continue
		}
		batch = append(batch, row[field].(string))
		if len(batch) == batchSize {
			f.scanBatches++
			if err := fn(batch); err != nil {
				return err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		f.scanBatches++
		return fn(batch)
	}
	return nil
}

func (f *fakeMilvus) DeleteByFilter(_ context.Context, _, filter string) (int64, error) {
	var n int64
	for rowID, row := range f.rows {
		if f.match(row, filter) {
			delete(f.rows, rowID)
			n++
		}
	}
	return n, nil
}

func TestMilvusIndex(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMilvus()
	idx, err := NewMilvusIndex(ctx, fake, &letterEmbedder{}, "cyplan_docs", 26)
	require.NoError(t, err)
	require.NotNil(t, fake.schema)
	assert.Equal(t, 26, fake.schema.Dimension)
	assert.Len(t, fake.schema.MetaFields, 5)

	require.NoError(t, idx.Add(ctx, "policies", docChunks("p.md", "zzzz", "password policy")))
	require.NoError(t, idx.Add(ctx, "ai", docChunks("a.md", "model evasion")))

	hits, err := idx.Search(ctx, "password policy", 5, "policies")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "policies_p.md_1", hits[0].ID)
	assert.Equal(t, 1, hits[0].ChunkIndex)
	assert.Equal(t, "password policy", hits[0].Content)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)

	libs, err := idx.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai", "policies"}, libs)

	deleted, err := idx.DeleteLibrary(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = idx.DeleteLibrary(ctx, "ai")
	require.NoError(t, err)
	assert.True(t, deleted)

	libs, err = idx.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"policies"}, libs)
}

func TestMilvusIndexRequiresEmbedder(t *testing.T) {
	_, err := NewMilvusIndex(context.Background(), newFakeMilvus(), nil, "c", 8)
	assert.ErrorIs(t, err, errors.ErrEmbeddingNotConfigured)
}

func TestMilvusListLibrariesPagesPastFirstBatch(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMilvus()
	idx, err := NewMilvusIndex(ctx, fake, &letterEmbedder{}, "cyplan_docs", 26)
	require.NoError(t, err)

	contents := make([]string, libraryScanBatch+1)
	for i := range contents {
		contents[i] = fmt.Sprintf("chunk %d", i)
	}
	require.NoError(t, idx.Add(ctx, "bulk", docChunks("bulk.md", contents...)))
	require.NoError(t, idx.Add(ctx, "late", docChunks("late.md", "appears after the first page")))

	libs, err := idx.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bulk", "late"}, libs)
	assert.Equal(t, 2, fake.scanBatches)
}
