package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/pkg/llm"
)

// LocalIndex keeps chunks and their embeddings in a gorm table and ranks
// them by brute-force cosine distance.
type LocalIndex struct {
	db       *gorm.DB
	embedder llm.EmbeddingProvider
}

// NewLocalIndex creates the document_chunks table when missing.
func NewLocalIndex(ctx context.Context, db *gorm.DB, embedder llm.EmbeddingProvider) (*LocalIndex, error) {
	if err := checkEmbedder(embedder); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).AutoMigrate(&model.DocumentChunk{}); err != nil {
		return nil, fmt.Errorf("migrate document_chunks: %w", err)
	}
	return &LocalIndex{db: db, embedder: embedder}, nil
}

func (x *LocalIndex) Add(ctx context.Context, library string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vecs, err := embedChunks(ctx, x.embedder, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	records := chunkRecords(library, chunks)
	for i := range records {
		records[i].Embedding = datatypes.NewJSONType(vecs[i])
	}
	return x.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&records, 100).Error
}

func (x *LocalIndex) Search(ctx context.Context, query string, k int, library string) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	qvec, err := x.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	q := x.db.WithContext(ctx).Model(&model.DocumentChunk{})
	if library != "" {
		q = q.Where("library = ?", library)
	}

	hits := make([]Hit, 0, k)
	var batch []model.DocumentChunk
	err = q.FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
		for _, row := range batch {
			hits = append(hits, Hit{
				ID:         row.ID,
				Library:    row.Library,
				Source:     row.Source,
				ChunkIndex: row.ChunkIndex,
				Content:    row.Content,
				Distance:   CosineDistance(qvec, row.Embedding.Data()),
			})
		}
		return nil
	}).Error
	if err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (x *LocalIndex) ListLibraries(ctx context.Context) ([]string, error) {
	var libs []string
	err := x.db.WithContext(ctx).Model(&model.DocumentChunk{}).Distinct().Pluck("library", &libs).Error
	if err != nil {
		return nil, err
	}
	return uniqueSorted(libs), nil
}

func (x *LocalIndex) DeleteLibrary(ctx context.Context, library string) (bool, error) {
	res := x.db.WithContext(ctx).Where("library = ?", library).Delete(&model.DocumentChunk{})
	if res.Error != nil {
		return false, res.Error
	}
	logger.Infow("deleted library", "library", library, "chunks", res.RowsAffected)
	return res.RowsAffected > 0, nil
}

var _ VectorIndex = (*LocalIndex)(nil)
