package handler

import (
	"github.com/gin-gonic/gin"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/service"
	"questionnaire-agent-go/pkg/log"
)

// AnswerHandler serves answer generation and manual-edit endpoints.
type AnswerHandler struct {
	projectService service.ProjectService
	answerService  service.AnswerService
}

// NewAnswerHandler creates an AnswerHandler.
func NewAnswerHandler(projectService service.ProjectService, answerService service.AnswerService) *AnswerHandler {
	return &AnswerHandler{projectService: projectService, answerService: answerService}
}

type generateSingleRequest struct {
	ProjectID  string `json:"project_id" binding:"required"`
	QuestionID string `json:"question_id" binding:"required"`
	Force      bool   `json:"force"`
}

// GenerateSingleAnswer schedules the regeneration of one question's answer.
// A second request for the same question while one is in flight gets 409.
func (h *AnswerHandler) GenerateSingleAnswer(c *gin.Context) {
	var req generateSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidInput, "invalid request body", err))
		return
	}
	job, err := h.projectService.GenerateSingle(c.Request.Context(), req.ProjectID, req.QuestionID, req.Force)
	if err != nil {
		log.Warnf("[AnswerHandler] single-answer request rejected: %v", err)
		respondError(c, err)
		return
	}
	respondAccepted(c, gin.H{"job_id": job.ID, "status": job.Status})
}

type generateAllRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	Force     bool   `json:"force"`
}

// GenerateAllAnswers schedules generation for every unanswered question of
// the project.
func (h *AnswerHandler) GenerateAllAnswers(c *gin.Context) {
	var req generateAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidInput, "invalid request body", err))
		return
	}
	job, err := h.projectService.Resume(c.Request.Context(), req.ProjectID, req.Force)
	if err != nil {
		respondError(c, err)
		return
	}
	respondAccepted(c, gin.H{"job_id": job.ID, "status": job.Status})
}

type updateAnswerRequest struct {
	AnswerID   string `json:"answer_id"`
	QuestionID string `json:"question_id"`
	AnswerText string `json:"answer_text" binding:"required"`
	// Status is MANUAL_UPDATED (default), CONFIRMED or REJECTED.
	Status string `json:"status"`
}

// UpdateAnswer stores a human edit and marks the question so bulk
// regeneration leaves it alone.
func (h *AnswerHandler) UpdateAnswer(c *gin.Context) {
	var req updateAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidInput, "invalid request body", err))
		return
	}
	answer, err := h.answerService.UpdateAnswer(req.AnswerID, req.QuestionID, req.AnswerText, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, answer)
}
