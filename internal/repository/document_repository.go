// Package repository defines the data-access interfaces and their GORM and
// Redis implementations.
package repository

import (
	"time"

	"gorm.io/gorm"

	"questionnaire-agent-go/internal/model"
)

// DocumentRepository persists reference documents.
type DocumentRepository interface {
	Create(doc *model.Document) error
	GetByID(id string) (*model.Document, error)
	FindBySourcePath(sourcePath string) (*model.Document, error)
	FindAll() ([]model.Document, error)
	// FindIndexedIDs returns the ids of INDEXED documents, restricted to
	// the given ids unless ids is nil (nil means every indexed document).
	// Results follow document creation order so retrieval tie-breaks stay
	// deterministic.
	FindIndexedIDs(ids []string) ([]string, error)
	UpdateStatus(id, status string) error
	MarkIndexed(id string, chunkCount int) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a DocumentRepository.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) GetByID(id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindBySourcePath(sourcePath string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("source_path = ?", sourcePath).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindAll() ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Order("created_at asc").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) FindIndexedIDs(ids []string) ([]string, error) {
	query := r.db.Model(&model.Document{}).
		Where("status = ?", model.DocumentStatusIndexed).
		Order("created_at asc")
	if ids != nil {
		query = query.Where("id IN ?", ids)
	}
	var indexed []string
	err := query.Pluck("id", &indexed).Error
	return indexed, err
}

func (r *documentRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Update("status", status).Error
}

// MarkIndexed flips the document to INDEXED with its final chunk count.
// This is the visibility barrier: retrieval only considers INDEXED ids, so
// chunks written before this point stay invisible.
func (r *documentRepository) MarkIndexed(id string, chunkCount int) error {
	now := time.Now()
	return r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      model.DocumentStatusIndexed,
		"chunk_count": chunkCount,
		"indexed_at":  &now,
	}).Error
}
