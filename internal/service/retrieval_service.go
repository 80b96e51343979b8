package service

import (
	"context"
	"fmt"
	"sort"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/pkg/embedding"
	"questionnaire-agent-go/pkg/log"
)

// VectorSearcher is the similarity-search side of the embedding index.
type VectorSearcher interface {
	SearchByVector(ctx context.Context, vector []float32, k int, documentIDs []string) ([]model.RetrievedChunk, error)
}

// RetrievalService returns the most similar chunks for a question within a
// document scope.
type RetrievalService interface {
	// Retrieve searches the embeddings of the scoped documents. A nil
	// scopeDocumentIDs with allDocs=true spans every indexed document.
	// An empty effective scope yields an empty result, not an error.
	Retrieve(ctx context.Context, questionText string, scopeDocumentIDs []string, allDocs bool, k int) ([]model.RetrievedChunk, error)
}

type retrievalService struct {
	embeddingClient embedding.Client
	searcher        VectorSearcher
	documentRepo    repository.DocumentRepository
}

// NewRetrievalService creates a RetrievalService.
func NewRetrievalService(embeddingClient embedding.Client, searcher VectorSearcher, documentRepo repository.DocumentRepository) RetrievalService {
	return &retrievalService{
		embeddingClient: embeddingClient,
		searcher:        searcher,
		documentRepo:    documentRepo,
	}
}

func (s *retrievalService) Retrieve(ctx context.Context, questionText string, scopeDocumentIDs []string, allDocs bool, k int) ([]model.RetrievedChunk, error) {
	// Only INDEXED documents are searchable; a document mid-index or
	// failed contributes nothing, which keeps partial chunk sets
	// invisible.
	restrictTo := scopeDocumentIDs
	if allDocs {
		restrictTo = nil
	}
	indexedIDs, err := s.documentRepo.FindIndexedIDs(restrictTo)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve indexed scope: %w", err)
	}
	if len(indexedIDs) == 0 {
		log.Infof("[Retrieval] no indexed documents in scope, returning empty evidence")
		return []model.RetrievedChunk{}, nil
	}

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, questionText)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, "failed to embed question", err)
	}

	hits, err := s.searcher.SearchByVector(ctx, queryVector, k, indexedIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, "similarity search failed", err)
	}

	sortRetrieved(hits, indexedIDs)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// sortRetrieved orders hits by score descending, breaking ties by the
// document's position in creation order and then by chunk ordinal, so equal
// scores always come back in the same order.
func sortRetrieved(hits []model.RetrievedChunk, orderedDocIDs []string) {
	docOrder := make(map[string]int, len(orderedDocIDs))
	for i, id := range orderedDocIDs {
		docOrder[id] = i
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if docOrder[hits[i].DocumentID] != docOrder[hits[j].DocumentID] {
			return docOrder[hits[i].DocumentID] < docOrder[hits[j].DocumentID]
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
}
