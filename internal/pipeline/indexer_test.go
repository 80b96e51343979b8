package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
)

type stubLoader struct {
	text string
	err  error
}

func (s *stubLoader) Load(_ context.Context, _, _ string) (string, error) {
	return s.text, s.err
}

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) CreateEmbedding(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type stubIndex struct {
	indexed []model.EsChunk
	deleted []string
}

func (s *stubIndex) IndexChunk(_ context.Context, chunk model.EsChunk) error {
	s.indexed = append(s.indexed, chunk)
	return nil
}

func (s *stubIndex) DeleteByDocumentID(_ context.Context, documentID string) error {
	s.deleted = append(s.deleted, documentID)
	return nil
}

type stubDocumentRepo struct {
	doc     *model.Document
	history []string
	marked  int
}

func (r *stubDocumentRepo) Create(*model.Document) error { return nil }

func (r *stubDocumentRepo) GetByID(id string) (*model.Document, error) {
	if r.doc != nil && r.doc.ID == id {
		return r.doc, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubDocumentRepo) FindBySourcePath(string) (*model.Document, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubDocumentRepo) FindAll() ([]model.Document, error)        { return nil, nil }
func (r *stubDocumentRepo) FindIndexedIDs([]string) ([]string, error) { return nil, nil }

func (r *stubDocumentRepo) UpdateStatus(_, status string) error {
	r.doc.Status = status
	r.history = append(r.history, status)
	return nil
}

func (r *stubDocumentRepo) MarkIndexed(_ string, chunkCount int) error {
	r.doc.Status = model.DocumentStatusIndexed
	r.doc.ChunkCount = chunkCount
	r.history = append(r.history, model.DocumentStatusIndexed)
	r.marked++
	return nil
}

type stubChunkRepo struct {
	stored  []*model.DocumentChunk
	deleted []string
}

func (r *stubChunkRepo) BatchCreate(chunks []*model.DocumentChunk) error {
	r.stored = append(r.stored, chunks...)
	return nil
}

func (r *stubChunkRepo) FindByDocumentID(string) ([]*model.DocumentChunk, error) { return nil, nil }

func (r *stubChunkRepo) DeleteByDocumentID(documentID string) error {
	r.deleted = append(r.deleted, documentID)
	return nil
}

type stubLockRepo struct {
	mu   sync.Mutex
	held map[string]bool
}

func newStubLockRepo() *stubLockRepo { return &stubLockRepo{held: map[string]bool{}} }

func (r *stubLockRepo) AcquireGenerationLock(_ context.Context, id string, _ time.Duration) (bool, error) {
	return r.acquire("gen:" + id), nil
}
func (r *stubLockRepo) ReleaseGenerationLock(_ context.Context, id string) error {
	r.release("gen:" + id)
	return nil
}
func (r *stubLockRepo) AcquireIndexLock(_ context.Context, id string, _ time.Duration) (bool, error) {
	return r.acquire("idx:" + id), nil
}
func (r *stubLockRepo) ReleaseIndexLock(_ context.Context, id string) error {
	r.release("idx:" + id)
	return nil
}

func (r *stubLockRepo) acquire(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[key] {
		return false
	}
	r.held[key] = true
	return true
}

func (r *stubLockRepo) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, key)
}

func indexerFixture(loader *stubLoader) (*Indexer, *stubDocumentRepo, *stubChunkRepo, *stubIndex, *stubEmbedder, *stubLockRepo) {
	docRepo := &stubDocumentRepo{doc: &model.Document{
		ID: "doc_1", Name: "report.pdf", SourcePath: "files/report.pdf",
		Status: model.DocumentStatusPending,
	}}
	chunkRepo := &stubChunkRepo{}
	index := &stubIndex{}
	embedder := &stubEmbedder{}
	locks := newStubLockRepo()
	ix := NewIndexer(loader, embedder, index, docRepo, chunkRepo, locks, 10, 2, "bge-m3", time.Minute)
	return ix, docRepo, chunkRepo, index, embedder, locks
}

func TestIndexDocumentHappyPath(t *testing.T) {
	ix, docRepo, chunkRepo, index, embedder, locks := indexerFixture(&stubLoader{text: strings.Repeat("a", 25)})

	var progress []float64
	err := ix.IndexDocument(context.Background(), "doc_1", func(f float64, _ string) {
		progress = append(progress, f)
	}, nil)
	require.NoError(t, err)

	// chunkSize 10 with overlap 2 over 25 runes: windows at 0, 8, 16.
	assert.Len(t, chunkRepo.stored, 3)
	assert.Len(t, index.indexed, 3)
	assert.Equal(t, 3, embedder.calls)

	// Old state is cleared before the rewrite, on both sides.
	assert.Equal(t, []string{"doc_1"}, chunkRepo.deleted)
	assert.Equal(t, []string{"doc_1"}, index.deleted)

	// Deterministic chunk ids: re-index overwrites, never duplicates.
	assert.Equal(t, "doc_1_0", index.indexed[0].ChunkID)
	assert.Equal(t, "doc_1_2", index.indexed[2].ChunkID)
	assert.Equal(t, "bge-m3", index.indexed[0].ModelVersion)

	assert.Equal(t, model.DocumentStatusIndexed, docRepo.doc.Status)
	assert.Equal(t, 3, docRepo.doc.ChunkCount)
	// INDEXING was visible while the pipeline ran.
	assert.Equal(t, []string{model.DocumentStatusIndexing, model.DocumentStatusIndexed}, docRepo.history)

	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	// Lock released at the end.
	assert.False(t, locks.held["idx:doc_1"])
}

func TestIndexDocumentMarksFailedOnLoadError(t *testing.T) {
	ix, docRepo, _, index, _, _ := indexerFixture(&stubLoader{err: apperr.New(apperr.KindUpstreamFailure, "tika down")})

	err := ix.IndexDocument(context.Background(), "doc_1", nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.Retryable(err))
	assert.Equal(t, model.DocumentStatusFailed, docRepo.doc.Status)
	assert.Empty(t, index.indexed)
}

func TestIndexDocumentEmbedFailureLeavesNotIndexed(t *testing.T) {
	ix, docRepo, _, _, embedder, _ := indexerFixture(&stubLoader{text: strings.Repeat("b", 25)})
	embedder.err = assert.AnError

	err := ix.IndexDocument(context.Background(), "doc_1", nil, nil)
	require.Error(t, err)
	// The visibility barrier never flipped: retrieval ignores the doc.
	assert.Equal(t, model.DocumentStatusFailed, docRepo.doc.Status)
	assert.Zero(t, docRepo.marked)
}

func TestIndexDocumentRespectsCancellation(t *testing.T) {
	ix, docRepo, _, index, _, _ := indexerFixture(&stubLoader{text: strings.Repeat("c", 100)})

	err := ix.IndexDocument(context.Background(), "doc_1", nil, func() bool { return true })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, index.indexed)
	assert.Equal(t, model.DocumentStatusFailed, docRepo.doc.Status)
}

func TestIndexDocumentConcurrentRunRejected(t *testing.T) {
	ix, _, _, _, _, locks := indexerFixture(&stubLoader{text: "short text"})
	locks.acquire("idx:doc_1")

	err := ix.IndexDocument(context.Background(), "doc_1", nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindResourceBusy, apperr.KindOf(err))
}

func TestIndexDocumentUnknownID(t *testing.T) {
	ix, _, _, _, _, _ := indexerFixture(&stubLoader{text: "text"})
	err := ix.IndexDocument(context.Background(), "doc_missing", nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSplitTextWindows(t *testing.T) {
	chunks := splitText("abcdefghij", 4, 1)
	// step 3, windows at 0, 3, 6; the last window reaches the end
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, chunks)
}

func TestSplitTextShortInput(t *testing.T) {
	chunks := splitText("abc", 1000, 100)
	assert.Equal(t, []string{"abc"}, chunks)
}

func TestSplitTextEmpty(t *testing.T) {
	assert.Nil(t, splitText("", 1000, 100))
}

func TestSplitTextInvalidOverlapFallsBack(t *testing.T) {
	// overlap >= size falls back to non-overlapping windows.
	chunks := splitText("abcdefgh", 3, 5)
	assert.Equal(t, []string{"abc", "def", "gh"}, chunks)
}

func TestSplitTextMultibyte(t *testing.T) {
	chunks := splitText("日本語のテキスト", 3, 1)
	assert.Equal(t, []string{"日本語", "語のテ", "テキス", "スト"}, chunks)
}
