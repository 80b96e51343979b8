package handler

import (
	"github.com/gin-gonic/gin"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/service"
	"questionnaire-agent-go/pkg/log"
)

// ProjectHandler serves the project lifecycle endpoints.
type ProjectHandler struct {
	projectService service.ProjectService
}

// NewProjectHandler creates a ProjectHandler.
func NewProjectHandler(projectService service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

type createProjectRequest struct {
	Name              string `json:"name" binding:"required"`
	QuestionnairePath string `json:"questionnaire_path" binding:"required"`
	// Scope is either "ALL_DOCS" (the default) or a comma-joined list of
	// document ids.
	Scope string `json:"scope"`
}

// CreateProjectAsync accepts a questionnaire and returns immediately with
// the new project id and the tracking job id.
func (h *ProjectHandler) CreateProjectAsync(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidInput, "invalid request body", err))
		return
	}
	log.Infof("[ProjectHandler] create project '%s' from %s", req.Name, req.QuestionnairePath)

	project, job, err := h.projectService.Create(c.Request.Context(), req.Name, req.QuestionnairePath, req.Scope)
	if err != nil {
		log.Errorf("[ProjectHandler] create project failed: %v", err)
		respondError(c, err)
		return
	}
	respondAccepted(c, gin.H{
		"project_id": project.ID,
		"job_id":     job.ID,
		"status":     job.Status,
	})
}

// GetProjectInfo returns the project with its questions and answers.
func (h *ProjectHandler) GetProjectInfo(c *gin.Context) {
	info, err := h.projectService.GetProjectInfo(c.Param("projectID"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, info)
}

// GetProjectStatus is the lightweight status poll.
func (h *ProjectHandler) GetProjectStatus(c *gin.Context) {
	project, err := h.projectService.GetProject(c.Param("projectID"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"project_id":     project.ID,
		"status":         project.Status,
		"question_count": project.QuestionCount,
		"answered_count": project.AnsweredCount,
		"last_error":     project.LastError,
	})
}

// ListProjects returns all projects, newest first.
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.projectService.ListProjects()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, projects)
}

// ResumeProjectGeneration restarts generation for a FAILED, OUTDATED or
// partially answered project. force=true regenerates everything.
func (h *ProjectHandler) ResumeProjectGeneration(c *gin.Context) {
	force := c.Query("force") == "true"
	job, err := h.projectService.Resume(c.Request.Context(), c.Param("projectID"), force)
	if err != nil {
		respondError(c, err)
		return
	}
	respondAccepted(c, gin.H{"job_id": job.ID, "status": job.Status})
}

type evaluateProjectRequest struct {
	ProjectID      string            `json:"project_id" binding:"required"`
	GroundTruthMap map[string]string `json:"ground_truth_map" binding:"required"`
}

// EvaluateProject schedules the semantic evaluation of a project's answers
// against the supplied ground truth.
func (h *ProjectHandler) EvaluateProject(c *gin.Context) {
	var req evaluateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidInput, "invalid request body", err))
		return
	}
	job, err := h.projectService.Evaluate(c.Request.Context(), req.ProjectID, req.GroundTruthMap)
	if err != nil {
		respondError(c, err)
		return
	}
	respondAccepted(c, gin.H{"job_id": job.ID, "status": job.Status})
}

// EvaluationReport returns the stored per-question scores and the project
// average.
func (h *ProjectHandler) EvaluationReport(c *gin.Context) {
	report, err := h.projectService.EvaluationReport(c.Param("projectID"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}
