package model

import (
	"fmt"

	"gorm.io/datatypes"
)

// DocumentChunk is an embedded slice of an ingested document as stored by the
// local vector backend.
type DocumentChunk struct {
	ID          string                        `json:"id" gorm:"primaryKey;type:varchar(512)"`
	Library     string                        `json:"library" gorm:"type:varchar(64);index;not null"`
	Source      string                        `json:"source" gorm:"type:varchar(255);not null"`
	ChunkIndex  int                           `json:"chunk_index"`
	TotalChunks int                           `json:"total_chunks"`
	Content     string                        `json:"content" gorm:"type:text;not null"`
	Embedding   datatypes.JSONType[[]float32] `json:"-"`
}

// TableName specifies the table name for DocumentChunk.
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// ChunkID returns the deterministic chunk id "{library}_{source}_{index}".
func ChunkID(library, source string, index int) string {
	return fmt.Sprintf("%s_%s_%d", library, source, index)
}

// All returns every model migrated at startup.
func All() []any {
	return []any{
		&Framework{}, &Control{}, &Threat{}, &ControlMapping{},
		&Prompt{}, &Plan{}, &Response{},
		&AgentSession{}, &AgentMessage{},
		&ChatThread{}, &ChatMessage{},
	}
}
