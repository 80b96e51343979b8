// Package pipeline implements the document indexing flow.
package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/internal/service"
	"questionnaire-agent-go/pkg/embedding"
	"questionnaire-agent-go/pkg/log"
)

// ChunkIndex is the vector-index side of the pipeline (Elasticsearch).
type ChunkIndex interface {
	IndexChunk(ctx context.Context, chunk model.EsChunk) error
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

// Progress receives coarse progress updates while a document is indexed.
type Progress func(fraction float64, message string)

// ErrCancelled is returned when an in-flight indexing run stops because
// the owning job was asked to cancel. Non-retryable.
var ErrCancelled = apperr.New(apperr.KindInvalidInput, "indexing cancelled")

// Indexer runs the load -> split -> embed -> index flow for a document.
// A retrieval only ever sees the document once MarkIndexed has flipped it
// to INDEXED, so a half-written index is invisible to readers.
type Indexer struct {
	loader       service.DocumentLoader
	embedder     embedding.Client
	index        ChunkIndex
	documentRepo repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	lockRepo     repository.LockRepository

	chunkSize    int
	chunkOverlap int
	modelVersion string
	lockTTL      time.Duration
}

// NewIndexer creates an Indexer.
func NewIndexer(
	loader service.DocumentLoader,
	embedder embedding.Client,
	index ChunkIndex,
	documentRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	lockRepo repository.LockRepository,
	chunkSize, chunkOverlap int,
	modelVersion string,
	lockTTL time.Duration,
) *Indexer {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Indexer{
		loader:       loader,
		embedder:     embedder,
		index:        index,
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		lockRepo:     lockRepo,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		modelVersion: modelVersion,
		lockTTL:      lockTTL,
	}
}

// IndexDocument processes one document end to end. cancelled is polled
// between chunks; a true return aborts the run and leaves the document
// FAILED. On any failure the document is marked FAILED and the previous
// INDEXED state is not restored, matching the overwrite semantics of a
// re-index.
func (ix *Indexer) IndexDocument(ctx context.Context, documentID string, report Progress, cancelled func() bool) error {
	if report == nil {
		report = func(float64, string) {}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	acquired, err := ix.lockRepo.AcquireIndexLock(ctx, documentID, ix.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !acquired {
		return apperr.Newf(apperr.KindResourceBusy, "document %s is already being indexed", documentID)
	}
	defer func() {
		_ = ix.lockRepo.ReleaseIndexLock(context.Background(), documentID)
	}()

	doc, err := ix.documentRepo.GetByID(documentID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "document "+documentID+" not found", err)
	}
	if err := ix.documentRepo.UpdateStatus(doc.ID, model.DocumentStatusIndexing); err != nil {
		return err
	}

	if err := ix.run(ctx, doc, report, cancelled); err != nil {
		if ferr := ix.documentRepo.UpdateStatus(doc.ID, model.DocumentStatusFailed); ferr != nil {
			log.Errorf("[Indexer] failed to mark document %s FAILED: %v", doc.ID, ferr)
		}
		return err
	}
	return nil
}

func (ix *Indexer) run(ctx context.Context, doc *model.Document, report Progress, cancelled func() bool) error {
	log.Infof("[Indexer] indexing document %s (%s)", doc.ID, doc.Name)

	report(0.05, "Extracting text...")
	text, err := ix.loader.Load(ctx, doc.SourcePath, doc.Name)
	if err != nil {
		return err
	}
	log.Infof("[Indexer] extracted %d characters from '%s'", utf8.RuneCountInString(text), doc.Name)

	chunks := splitText(text, ix.chunkSize, ix.chunkOverlap)
	if len(chunks) == 0 {
		return apperr.Newf(apperr.KindInvalidInput, "document '%s' produced no chunks", doc.Name)
	}
	log.Infof("[Indexer] document %s split into %d chunks", doc.ID, len(chunks))
	report(0.1, fmt.Sprintf("Split into %d chunks", len(chunks)))

	// Phase one: replace the relational chunk rows. The previous chunks of
	// a re-indexed document must not survive alongside the new ones.
	if err := ix.chunkRepo.DeleteByDocumentID(doc.ID); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}
	rows := make([]*model.DocumentChunk, 0, len(chunks))
	for i, chunk := range chunks {
		rows = append(rows, &model.DocumentChunk{
			DocumentID: doc.ID,
			Ordinal:    i,
			Text:       chunk,
		})
	}
	if err := ix.chunkRepo.BatchCreate(rows); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	// Phase two: rebuild the vector index. Deterministic chunk ids make
	// the per-chunk writes overwrite any leftovers from a prior version.
	if err := ix.index.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return apperr.Wrap(apperr.KindUpstreamFailure, "failed to clear previous vectors", err)
	}
	for i, chunk := range chunks {
		if cancelled() {
			log.Warnf("[Indexer] indexing of document %s cancelled at chunk %d/%d", doc.ID, i, len(chunks))
			return ErrCancelled
		}
		vector, err := ix.embedder.CreateEmbedding(ctx, chunk)
		if err != nil {
			return apperr.Wrap(apperr.KindUpstreamFailure, fmt.Sprintf("embedding failed for chunk %d", i), err)
		}
		esChunk := model.EsChunk{
			ChunkID:      fmt.Sprintf("%s_%d", doc.ID, i),
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			Ordinal:      i,
			TextContent:  chunk,
			Vector:       vector,
			ModelVersion: ix.modelVersion,
		}
		if err := ix.index.IndexChunk(ctx, esChunk); err != nil {
			return apperr.Wrap(apperr.KindUpstreamFailure, fmt.Sprintf("failed to index chunk %d", i), err)
		}
		// Chunk writes span 10%..95%; the tail is the visibility flip.
		report(0.1+0.85*float64(i+1)/float64(len(chunks)), fmt.Sprintf("Indexed chunk %d/%d", i+1, len(chunks)))
	}

	// Visibility barrier: retrieval only considers INDEXED documents, so
	// the chunks written above become searchable atomically here.
	if err := ix.documentRepo.MarkIndexed(doc.ID, len(chunks)); err != nil {
		return fmt.Errorf("failed to mark document indexed: %w", err)
	}
	report(1.0, "Indexing complete")
	log.Infof("[Indexer] document %s indexed, %d chunks", doc.ID, len(chunks))
	return nil
}

// splitText slices text into rune windows of chunkSize with chunkOverlap
// runes shared between neighbours.
func splitText(text string, chunkSize, chunkOverlap int) []string {
	if chunkSize <= chunkOverlap {
		return simpleSplit(text, chunkSize)
	}

	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := chunkSize - chunkOverlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func simpleSplit(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
