package service

import (
	"context"
	"errors"
	"fmt"
	"path"

	"gorm.io/gorm"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/pkg/log"
	"questionnaire-agent-go/pkg/tasks"
)

// FileLister enumerates source files available in object storage.
type FileLister interface {
	ListFiles(ctx context.Context) ([]model.SourceFile, error)
}

// DocumentService accepts indexing requests and exposes the document
// catalogue. Indexing itself runs in the worker.
type DocumentService interface {
	// RequestIndex enqueues an indexing job for the object at filePath.
	// Re-indexing an already known path reuses the existing document row,
	// so the document id stays stable across versions.
	RequestIndex(ctx context.Context, filePath, docName string) (*model.Document, *model.Job, error)
	ListDocuments() ([]model.Document, error)
	ListFiles(ctx context.Context) ([]model.SourceFile, error)
}

type documentService struct {
	documentRepo repository.DocumentRepository
	jobService   JobService
	dispatcher   TaskDispatcher
	lister       FileLister
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(
	documentRepo repository.DocumentRepository,
	jobService JobService,
	dispatcher TaskDispatcher,
	lister FileLister,
) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		jobService:   jobService,
		dispatcher:   dispatcher,
		lister:       lister,
	}
}

func (s *documentService) RequestIndex(ctx context.Context, filePath, docName string) (*model.Document, *model.Job, error) {
	if filePath == "" {
		return nil, nil, apperr.New(apperr.KindInvalidInput, "file_path is required")
	}
	if docName == "" {
		docName = path.Base(filePath)
	}

	doc, err := s.documentRepo.FindBySourcePath(filePath)
	switch {
	case err == nil:
		// Known path: the re-index overwrites the previous version under
		// the same document id.
		doc.Name = docName
		if err := s.documentRepo.UpdateStatus(doc.ID, model.DocumentStatusPending); err != nil {
			return nil, nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		doc = &model.Document{
			ID:         model.NewID("doc"),
			Name:       docName,
			SourcePath: filePath,
			Status:     model.DocumentStatusPending,
		}
		if err := s.documentRepo.Create(doc); err != nil {
			return nil, nil, fmt.Errorf("failed to create document: %w", err)
		}
	default:
		return nil, nil, err
	}

	job, err := s.jobService.Create(model.JobTypeIndexing, doc.ID, "Document accepted, waiting for indexing...")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create job: %w", err)
	}
	task := tasks.JobTask{
		JobID:      job.ID,
		Type:       model.JobTypeIndexing,
		DocumentID: doc.ID,
	}
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		_ = s.jobService.Fail(job.ID, apperr.Wrap(apperr.KindUpstreamFailure, "failed to enqueue task", err))
		return nil, nil, fmt.Errorf("failed to dispatch task: %w", err)
	}
	log.Infof("[Document] indexing requested for %s (document %s, job %s)", filePath, doc.ID, job.ID)
	return doc, job, nil
}

func (s *documentService) ListDocuments() ([]model.Document, error) {
	return s.documentRepo.FindAll()
}

func (s *documentService) ListFiles(ctx context.Context) ([]model.SourceFile, error) {
	files, err := s.lister.ListFiles(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, "failed to list source files", err)
	}
	return files, nil
}
