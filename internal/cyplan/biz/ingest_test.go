package biz

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/pkg/utils/errors"
)

func newTestIngestor(t *testing.T, index *fakeIndex) *Ingestor {
	t.Helper()
	ing, err := NewIngestor(index, NewExtractor(nil), IngestorConfig{ChunkSize: 100, ChunkOverlap: 10, Workers: 2})
	require.NoError(t, err)
	t.Cleanup(ing.Close)
	return ing
}

func TestNewIngestorRequiresIndex(t *testing.T) {
	_, err := NewIngestor(nil, nil, IngestorConfig{})
	assert.ErrorIs(t, err, errors.ErrEmbeddingNotConfigured)
}

func TestIngestText(t *testing.T) {
	index := newFakeIndex()
	ing := newTestIngestor(t, index)
	text := strings.Repeat("Multi-factor authentication is required for remote access. ", 8)

	res, err := ing.IngestText(context.Background(), "policies", "mfa.txt", text)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "policies", res.Library)
	assert.Equal(t, "mfa.txt", res.File)
	assert.Equal(t, len(text), res.TotalChars)

	chunks := index.chunks("policies")
	require.Len(t, chunks, res.Chunks)
	require.Greater(t, res.Chunks, 1)
	for n, c := range chunks {
		assert.Equal(t, n, c.Index)
		assert.Equal(t, res.Chunks, c.TotalChunks)
		assert.Equal(t, "mfa.txt", c.Source)
	}
}

func TestIngestClearsContextCache(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cache := NewContextCache(rdb, ContextCacheConfig{Enabled: true})
	ing, err := NewIngestor(newFakeIndex(), NewExtractor(nil), IngestorConfig{
		ChunkSize: 100, ChunkOverlap: 10, Workers: 2, Cache: cache,
	})
	require.NoError(t, err)
	t.Cleanup(ing.Close)
	ctx := context.Background()

	cache.Set(ctx, "q", true, "stale")
	_, err = ing.IngestText(ctx, "a/b", "doc.txt", "text")
	require.Error(t, err)
	assert.Len(t, mr.Keys(), 1)

	_, err = ing.IngestText(ctx, "lib", "doc.txt", "Rotate keys yearly.")
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())

	dir := t.TempDir()
	good := writeFile(t, dir, "a.txt", "Backups are tested monthly.")
	bad := writeFile(t, dir, "b.csv", "x,y")

	cache.Set(ctx, "q", true, "stale")
	res := ing.IngestBatch(ctx, "lib", []string{bad})
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, mr.Keys(), 1)

	res = ing.IngestBatch(ctx, "lib", []string{good, bad})
	assert.Equal(t, 1, res.Successful)
	assert.Empty(t, mr.Keys())
}

func TestIngestTextRejectsBadInput(t *testing.T) {
	ing := newTestIngestor(t, newFakeIndex())
	ctx := context.Background()

	_, err := ing.IngestText(ctx, "a/b", "doc.txt", "text")
	assert.ErrorIs(t, err, errors.ErrInvalidIngestInput)

	_, err = ing.IngestText(ctx, "lib", "  ", "text")
	assert.ErrorIs(t, err, errors.ErrInvalidIngestInput)

	_, err = ing.IngestText(ctx, "lib", "empty.txt", " \n ")
	assert.ErrorIs(t, err, errors.ErrInvalidIngestInput)
}

func TestIngestTextIndexFailure(t *testing.T) {
	index := newFakeIndex()
	index.addErr = errors.ErrLLMUpstream
	ing := newTestIngestor(t, index)

	_, err := ing.IngestText(context.Background(), "lib", "doc.txt", "some text")
	assert.ErrorIs(t, err, errors.ErrLLMUpstream)
}

func TestIngestFileUnsupported(t *testing.T) {
	ing := newTestIngestor(t, newFakeIndex())
	path := writeFile(t, t.TempDir(), "data.csv", "a,b")

	_, err := ing.IngestFile(context.Background(), "lib", path)
	assert.ErrorIs(t, err, errors.ErrUnsupportedFileType)
}

func TestIngestBatchKeepsGoing(t *testing.T) {
	index := newFakeIndex()
	ing := newTestIngestor(t, index)
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "good.txt", "Patch management is performed monthly."),
		writeFile(t, dir, "bad.csv", "x"),
		writeFile(t, dir, "blank.txt", "   "),
		filepath.Join(dir, "missing.md"),
		writeFile(t, dir, "also-good.md", "# Backups\n\nBackups are tested quarterly."),
	}

	batch := ing.IngestBatch(context.Background(), "ops", paths)
	assert.Equal(t, 2, batch.Successful)
	assert.Equal(t, 3, batch.Failed)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "good.txt", batch.Results[0].File)
	assert.Equal(t, "also-good.md", batch.Results[1].File)
	require.Len(t, batch.Errors, 3)
	assert.Equal(t, paths[1], batch.Errors[0].File)
	assert.Equal(t, paths[2], batch.Errors[1].File)
	assert.Equal(t, paths[3], batch.Errors[2].File)
	assert.Len(t, index.chunks("ops"), 2)
}

func TestIngestDirectory(t *testing.T) {
	index := newFakeIndex()
	ing := newTestIngestor(t, index)
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "Encryption at rest uses AES-256.")
	writeFile(t, dir, "a.txt", "Access reviews happen quarterly.")
	writeFile(t, dir, "skip.csv", "a,b")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, filepath.Join(dir, "sub"), "c.TXT", "Logs are kept for one year.")

	batch, err := ing.IngestDirectory(context.Background(), "handbook", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Successful)
	assert.Equal(t, 0, batch.Failed)
	assert.Empty(t, batch.Errors)

	var files []string
	for _, r := range batch.Results {
		files = append(files, r.File)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.md", "c.TXT"}, files)

	_, err = ing.IngestDirectory(context.Background(), "handbook", filepath.Join(dir, "nope"))
	assert.ErrorIs(t, err, errors.ErrInvalidIngestInput)
}
