package store

import (
	"context"
	"math"
	"sort"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/pkg/llm"
	"github.com/kart-io/cyplan/pkg/utils/errors"
)

// embedBatchSize bounds the number of texts sent per embedding request.
const embedBatchSize = 64

// Chunk is a piece of a source document to be embedded and indexed.
type Chunk struct {
	Source      string
	Index       int
	TotalChunks int
	Content     string
}

// Hit is a search result ranked by ascending cosine distance.
type Hit struct {
	ID         string  `json:"id"`
	Library    string  `json:"library"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Distance   float64 `json:"distance"`
}

// VectorIndex stores embedded document chunks grouped into libraries.
type VectorIndex interface {
	// Add embeds and upserts chunks under library. Chunk ids are
	// "{library}_{source}_{index}", so re-adding a document overwrites it.
	Add(ctx context.Context, library string, chunks []Chunk) error
	// Search returns at most k hits; an empty library searches every library.
	Search(ctx context.Context, query string, k int, library string) ([]Hit, error)
	// ListLibraries returns sorted, de-duplicated library names.
	ListLibraries(ctx context.Context) ([]string, error)
	// DeleteLibrary removes every chunk of library and reports whether any existed.
	DeleteLibrary(ctx context.Context, library string) (bool, error)
}

func checkEmbedder(embedder llm.EmbeddingProvider) error {
	if embedder == nil {
		return errors.ErrEmbeddingNotConfigured
	}
	return nil
}

// embedChunks embeds chunk contents in batches, preserving order.
func embedChunks(ctx context.Context, embedder llm.EmbeddingProvider, chunks []Chunk) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, errors.ErrLLMUpstream.WithMessagef("embedding count mismatch: want %d, got %d", len(texts), len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func chunkRecords(library string, chunks []Chunk) []model.DocumentChunk {
	out := make([]model.DocumentChunk, len(chunks))
	for i, c := range chunks {
		out[i] = model.DocumentChunk{
			ID:          model.ChunkID(library, c.Source, c.Index),
			Library:     library,
			Source:      c.Source,
			ChunkIndex:  c.Index,
			TotalChunks: c.TotalChunks,
			Content:     c.Content,
		}
	}
	return out
}

// CosineDistance returns 1 - cosine similarity, or 1 when either vector is zero.
func CosineDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
