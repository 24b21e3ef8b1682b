package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kart-io/logger"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/cyplan/pkg/component/milvus"
	"github.com/kart-io/cyplan/pkg/llm"
)

const (
	fieldLibrary     = "library"
	fieldSource      = "source"
	fieldChunkIndex  = "chunk_index"
	fieldTotalChunks = "total_chunks"
	fieldContent     = "content"

	libraryScanBatch = 1000
)

// milvusClient is the subset of the milvus component used by MilvusIndex.
type milvusClient interface {
	EnsureCollection(ctx context.Context, schema *milvus.CollectionSchema) error
	Upsert(ctx context.Context, collection string, data *milvus.UpsertData) error
	Search(ctx context.Context, collection string, vector []float32, topK int, filter string, outputFields []string) ([]milvus.SearchResult, error)
	QueryStrings(ctx context.Context, collection, filter, field string, limit int) ([]string, error)
	ScanStrings(ctx context.Context, collection, filter, field string, batchSize int, fn func([]string) error) error
	DeleteByFilter(ctx context.Context, collection, filter string) (int64, error)
}

// MilvusIndex stores chunks in a Milvus collection with a COSINE index.
type MilvusIndex struct {
	client     milvusClient
	embedder   llm.EmbeddingProvider
	collection string
}

// NewMilvusIndex ensures the collection exists with the given dimension.
func NewMilvusIndex(ctx context.Context, client milvusClient, embedder llm.EmbeddingProvider, collection string, dimension int) (*MilvusIndex, error) {
	if err := checkEmbedder(embedder); err != nil {
		return nil, err
	}
	err := client.EnsureCollection(ctx, &milvus.CollectionSchema{
		Name:        collection,
		Description: "CyPlan library documents",
		Dimension:   dimension,
		IDMaxLen:    512,
		MetaFields: []milvus.MetaField{
			{Name: fieldLibrary, DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: fieldSource, DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: fieldTotalChunks, DataType: entity.FieldTypeInt64},
			{Name: fieldContent, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	})
	if err != nil {
		return nil, err
	}
	return &MilvusIndex{client: client, embedder: embedder, collection: collection}, nil
}

func libraryFilter(library string) string {
	return fieldLibrary + " == " + strconv.Quote(library)
}

func (x *MilvusIndex) Add(ctx context.Context, library string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vecs, err := embedChunks(ctx, x.embedder, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	records := chunkRecords(library, chunks)
	data := &milvus.UpsertData{
		IDs:        make([]string, len(records)),
		Embeddings: vecs,
		Metadata: map[string][]any{
			fieldLibrary:     make([]any, len(records)),
			fieldSource:      make([]any, len(records)),
			fieldChunkIndex:  make([]any, len(records)),
			fieldTotalChunks: make([]any, len(records)),
			fieldContent:     make([]any, len(records)),
		},
	}
	for i, r := range records {
		data.IDs[i] = r.ID
		data.Metadata[fieldLibrary][i] = r.Library
		data.Metadata[fieldSource][i] = r.Source
		data.Metadata[fieldChunkIndex][i] = int64(r.ChunkIndex)
		data.Metadata[fieldTotalChunks][i] = int64(r.TotalChunks)
		data.Metadata[fieldContent][i] = r.Content
	}
	return x.client.Upsert(ctx, x.collection, data)
}

func (x *MilvusIndex) Search(ctx context.Context, query string, k int, library string) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	qvec, err := x.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter := ""
	if library != "" {
		filter = libraryFilter(library)
	}
	results, err := x.client.Search(ctx, x.collection, qvec, k, filter,
		[]string{fieldLibrary, fieldSource, fieldChunkIndex, fieldContent})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		h := Hit{ID: r.ID, Distance: 1 - float64(r.Score)}
		h.Library, _ = r.Metadata[fieldLibrary].(string)
		h.Source, _ = r.Metadata[fieldSource].(string)
		h.Content, _ = r.Metadata[fieldContent].(string)
		if idx, ok := r.Metadata[fieldChunkIndex].(int64); ok {
			h.ChunkIndex = int(idx)
		}
		hits = append(hits, h)
	}
	sortHits(hits)
	return hits, nil
}

func (x *MilvusIndex) ListLibraries(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := x.client.ScanStrings(ctx, x.collection, `id != ""`, fieldLibrary, libraryScanBatch, func(batch []string) error {
		for _, lib := range batch {
			seen[lib] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	libs := make([]string, 0, len(seen))
	for lib := range seen {
		libs = append(libs, lib)
	}
	return uniqueSorted(libs), nil
}

// DeleteLibrary checks for existence first because Milvus delete counts are
// not reliable for filter deletes.
func (x *MilvusIndex) DeleteLibrary(ctx context.Context, library string) (bool, error) {
	filter := libraryFilter(library)
	ids, err := x.client.QueryStrings(ctx, x.collection, filter, "id", 1)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, nil
	}
	n, err := x.client.DeleteByFilter(ctx, x.collection, filter)
	if err != nil {
		return false, err
	}
	logger.Infow("deleted library", "library", library, "chunks", n)
	return true, nil
}

var _ VectorIndex = (*MilvusIndex)(nil)
