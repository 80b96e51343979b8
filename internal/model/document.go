package model

import "time"

// Document statuses.
const (
	DocumentStatusPending  = "PENDING"
	DocumentStatusIndexing = "INDEXING"
	DocumentStatusIndexed  = "INDEXED"
	DocumentStatusFailed   = "FAILED"
)

// Document is the ORM model for an indexed reference document.
type Document struct {
	ID         string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name       string     `gorm:"type:varchar(255);not null" json:"name"`
	SourcePath string     `gorm:"type:varchar(512);not null" json:"source_path"`
	Status     string     `gorm:"type:varchar(16);not null;default:PENDING;index" json:"status"`
	ChunkCount int        `gorm:"not null;default:0" json:"chunk_count"`
	IndexedAt  *time.Time `gorm:"default:null" json:"indexed_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName names the backing table.
func (Document) TableName() string {
	return "documents"
}

// DocumentChunk is the relational side of a chunk: its text and position.
// The embedding vector lives in the Elasticsearch index only.
type DocumentChunk struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID string `gorm:"type:varchar(64);not null;index" json:"document_id"`
	Ordinal    int    `gorm:"not null" json:"ordinal"`
	Text       string `gorm:"type:text" json:"text"`
}

// TableName names the backing table.
func (DocumentChunk) TableName() string {
	return "document_chunks"
}
