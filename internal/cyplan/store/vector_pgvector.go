package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/cyplan/pkg/llm"
)

// pgChunk is the pgvector row layout. The embedding column is created with the
// configured dimension by NewPGVectorIndex.
type pgChunk struct {
	ID          string          `gorm:"primaryKey;type:varchar(512)"`
	Library     string          `gorm:"type:varchar(64);index;not null"`
	Source      string          `gorm:"type:varchar(255);not null"`
	ChunkIndex  int
	TotalChunks int
	Content     string          `gorm:"type:text;not null"`
	Embedding   pgvector.Vector `gorm:"type:vector"`
}

// PGVectorIndex stores chunks in PostgreSQL and ranks them with the pgvector
// cosine distance operator.
type PGVectorIndex struct {
	db       *gorm.DB
	embedder llm.EmbeddingProvider
	table    string
}

// NewPGVectorIndex enables the vector extension and creates the chunk table.
func NewPGVectorIndex(ctx context.Context, db *gorm.DB, embedder llm.EmbeddingProvider, table string, dimension int) (*PGVectorIndex, error) {
	if err := checkEmbedder(embedder); err != nil {
		return nil, err
	}
	tx := db.WithContext(ctx)
	if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("enable pgvector: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id varchar(512) PRIMARY KEY,
	library varchar(64) NOT NULL,
	source varchar(255) NOT NULL,
	chunk_index bigint,
	total_chunks bigint,
	content text NOT NULL,
	embedding vector(%d)
)`, table, dimension)
	if err := tx.Exec(ddl).Error; err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	if err := tx.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_library ON %s (library)", table, table)).Error; err != nil {
		return nil, fmt.Errorf("index %s: %w", table, err)
	}
	return &PGVectorIndex{db: db, embedder: embedder, table: table}, nil
}

func (x *PGVectorIndex) Add(ctx context.Context, library string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vecs, err := embedChunks(ctx, x.embedder, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	rows := make([]pgChunk, 0, len(chunks))
	for i, r := range chunkRecords(library, chunks) {
		rows = append(rows, pgChunk{
			ID:          r.ID,
			Library:     r.Library,
			Source:      r.Source,
			ChunkIndex:  r.ChunkIndex,
			TotalChunks: r.TotalChunks,
			Content:     r.Content,
			Embedding:   pgvector.NewVector(vecs[i]),
		})
	}
	return x.db.WithContext(ctx).Table(x.table).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&rows, 100).Error
}

func (x *PGVectorIndex) Search(ctx context.Context, query string, k int, library string) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	qvec, err := x.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	q := x.db.WithContext(ctx).Table(x.table).
		Select("id, library, source, chunk_index, content, embedding <=> ? AS distance", pgvector.NewVector(qvec))
	if library != "" {
		q = q.Where("library = ?", library)
	}
	var hits []Hit
	if err := q.Order("distance").Limit(k).Scan(&hits).Error; err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits, nil
}

func (x *PGVectorIndex) ListLibraries(ctx context.Context) ([]string, error) {
	var libs []string
	if err := x.db.WithContext(ctx).Table(x.table).Distinct().Order("library").Pluck("library", &libs).Error; err != nil {
		return nil, err
	}
	return uniqueSorted(libs), nil
}

func (x *PGVectorIndex) DeleteLibrary(ctx context.Context, library string) (bool, error) {
	res := x.db.WithContext(ctx).Table(x.table).Where("library = ?", library).Delete(&pgChunk{})
	if res.Error != nil {
		return false, res.Error
	}
	logger.Infow("deleted library", "library", library, "chunks", res.RowsAffected)
	return res.RowsAffected > 0, nil
}

var _ VectorIndex = (*PGVectorIndex)(nil)
