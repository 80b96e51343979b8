package handler

import (
	"github.com/gin-gonic/gin"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/service"
	"questionnaire-agent-go/pkg/log"
)

// DocumentHandler serves the document catalogue and indexing endpoints.
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler creates a DocumentHandler.
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

type indexDocumentRequest struct {
	FilePath string `json:"file_path" binding:"required"`
	DocName  string `json:"doc_name"`
}

// IndexDocumentAsync schedules the indexing of a stored file and returns
// the tracking job id.
func (h *DocumentHandler) IndexDocumentAsync(c *gin.Context) {
	var req indexDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidInput, "invalid request body", err))
		return
	}
	log.Infof("[DocumentHandler] indexing requested for %s", req.FilePath)

	doc, job, err := h.documentService.RequestIndex(c.Request.Context(), req.FilePath, req.DocName)
	if err != nil {
		log.Errorf("[DocumentHandler] indexing request failed: %v", err)
		respondError(c, err)
		return
	}
	respondAccepted(c, gin.H{
		"document_id": doc.ID,
		"job_id":      job.ID,
		"status":      job.Status,
	})
}

// ListDocuments returns all known documents and their index states.
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.documentService.ListDocuments()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, docs)
}

// ListFiles enumerates the indexable objects in the source store.
func (h *DocumentHandler) ListFiles(c *gin.Context) {
	files, err := h.documentService.ListFiles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, files)
}
