package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/pkg/log"
	"questionnaire-agent-go/pkg/tasks"
)

// TaskDispatcher hands a job task to the worker queue.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, task tasks.JobTask) error
}

// ProjectService is the orchestrator owning the project lifecycle. All
// multi-step work is dispatched as tracked jobs; the methods here only
// validate, persist the initial state and enqueue.
type ProjectService interface {
	Create(ctx context.Context, name, questionnairePath, scope string) (*model.Project, *model.Job, error)
	// Resume re-fans-out generation for unanswered questions, or for all
	// questions when force is set. Used for FAILED recovery and OUTDATED
	// regeneration alike.
	Resume(ctx context.Context, projectID string, force bool) (*model.Job, error)
	GenerateSingle(ctx context.Context, projectID, questionID string, force bool) (*model.Job, error)
	Evaluate(ctx context.Context, projectID string, groundTruth map[string]string) (*model.Job, error)
	GetProject(projectID string) (*model.ProjectDTO, error)
	GetProjectInfo(projectID string) (*model.ProjectInfoDTO, error)
	ListProjects() ([]model.ProjectDTO, error)
	EvaluationReport(projectID string) (*model.EvaluationReportDTO, error)
	// MarkOutdatedForDocument flips COMPLETED projects whose scope covers
	// the newly indexed document to OUTDATED.
	MarkOutdatedForDocument(documentID string) error
}

type projectService struct {
	projectRepo  repository.ProjectRepository
	questionRepo repository.QuestionRepository
	answerRepo   repository.AnswerRepository
	jobService   JobService
	dispatcher   TaskDispatcher
	lockRepo     repository.LockRepository
	lockTTL      time.Duration
}

// NewProjectService creates a ProjectService.
func NewProjectService(
	projectRepo repository.ProjectRepository,
	questionRepo repository.QuestionRepository,
	answerRepo repository.AnswerRepository,
	jobService JobService,
	dispatcher TaskDispatcher,
	lockRepo repository.LockRepository,
	lockTTL time.Duration,
) ProjectService {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &projectService{
		projectRepo:  projectRepo,
		questionRepo: questionRepo,
		answerRepo:   answerRepo,
		jobService:   jobService,
		dispatcher:   dispatcher,
		lockRepo:     lockRepo,
		lockTTL:      lockTTL,
	}
}

func (s *projectService) Create(ctx context.Context, name, questionnairePath, scope string) (*model.Project, *model.Job, error) {
	if name == "" || questionnairePath == "" {
		return nil, nil, apperr.New(apperr.KindInvalidInput, "name and questionnaire_path are required")
	}
	if scope == "" {
		scope = model.ScopeAllDocs
	}

	project := &model.Project{
		ID:                  model.NewID("proj"),
		Name:                name,
		QuestionnaireSource: questionnairePath,
		DocumentScope:       scope,
		Status:              model.ProjectStatusProcessing,
	}
	// The project row exists before the job is dispatched so the caller
	// gets a resolvable project id immediately; questionnaire parsing and
	// generation happen in the worker.
	if err := s.projectRepo.CreateWithQuestions(project, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to create project: %w", err)
	}

	job, err := s.dispatch(ctx, model.JobTypeProjectCreation, project.ID, "Project accepted, parsing questionnaire...", tasks.JobTask{
		Type:      model.JobTypeProjectCreation,
		ProjectID: project.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Infof("[Orchestrator] project %s created, job %s dispatched", project.ID, job.ID)
	return project, job, nil
}

func (s *projectService) Resume(ctx context.Context, projectID string, force bool) (*model.Job, error) {
	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}

	if err := s.projectRepo.UpdateStatus(project.ID, model.ProjectStatusProcessing); err != nil {
		return nil, err
	}

	message := "Resuming generation for unanswered questions..."
	if force {
		message = "Regenerating all answers..."
	}
	return s.dispatch(ctx, model.JobTypeBulkAnswer, project.ID, message, tasks.JobTask{
		Type:      model.JobTypeBulkAnswer,
		ProjectID: project.ID,
		Force:     force,
	})
}

func (s *projectService) GenerateSingle(ctx context.Context, projectID, questionID string, force bool) (*model.Job, error) {
	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}
	question, err := s.questionRepo.GetByID(questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "question %s not found", questionID)
		}
		return nil, err
	}
	if question.ProjectID != project.ID {
		return nil, apperr.Newf(apperr.KindNotFound, "question %s does not belong to project %s", questionID, projectID)
	}

	// Single-flight: the lock is taken here so a second request gets an
	// immediate conflict instead of racing the in-flight worker. The
	// worker releases it when the generation finishes.
	acquired, err := s.lockRepo.AcquireGenerationLock(ctx, questionID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if !acquired {
		return nil, apperr.Newf(apperr.KindResourceBusy, "generation already in flight for question %s", questionID)
	}

	job, err := s.dispatch(ctx, model.JobTypeSingleAnswer, project.ID, fmt.Sprintf("Generating answer for question %s...", questionID), tasks.JobTask{
		Type:       model.JobTypeSingleAnswer,
		ProjectID:  project.ID,
		QuestionID: questionID,
		Force:      force,
	})
	if err != nil {
		_ = s.lockRepo.ReleaseGenerationLock(ctx, questionID)
		return nil, err
	}
	return job, nil
}

func (s *projectService) Evaluate(ctx context.Context, projectID string, groundTruth map[string]string) (*model.Job, error) {
	if len(groundTruth) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "ground_truth_map must not be empty")
	}
	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, model.JobTypeEvaluation, project.ID, "Evaluating answers against ground truth...", tasks.JobTask{
		Type:        model.JobTypeEvaluation,
		ProjectID:   project.ID,
		GroundTruth: groundTruth,
	})
}

func (s *projectService) GetProject(projectID string) (*model.ProjectDTO, error) {
	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}
	return s.toDTO(project)
}

func (s *projectService) GetProjectInfo(projectID string) (*model.ProjectInfoDTO, error) {
	dto, err := s.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.FindByProjectID(projectID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answerRepo.FindByProjectID(projectID)
	if err != nil {
		return nil, err
	}
	return &model.ProjectInfoDTO{
		Project:   *dto,
		Questions: questions,
		Answers:   answers,
	}, nil
}

func (s *projectService) ListProjects() ([]model.ProjectDTO, error) {
	projects, err := s.projectRepo.FindAll()
	if err != nil {
		return nil, err
	}
	dtos := make([]model.ProjectDTO, 0, len(projects))
	for i := range projects {
		dto, err := s.toDTO(&projects[i])
		if err != nil {
			return nil, err
		}
		dtos = append(dtos, *dto)
	}
	return dtos, nil
}

func (s *projectService) EvaluationReport(projectID string) (*model.EvaluationReportDTO, error) {
	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.FindByProjectID(projectID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answerRepo.FindByProjectID(projectID)
	if err != nil {
		return nil, err
	}
	answerByQuestion := make(map[string]*model.Answer, len(answers))
	for _, a := range answers {
		answerByQuestion[a.QuestionID] = a
	}

	report := &model.EvaluationReportDTO{
		ProjectID:    projectID,
		AverageScore: project.AverageEvaluationScore,
		Scores:       make([]model.QuestionScoreDTO, 0, len(questions)),
	}
	for _, q := range questions {
		row := model.QuestionScoreDTO{QuestionID: q.ID, QuestionText: q.Text}
		if a, ok := answerByQuestion[q.ID]; ok {
			row.Score = a.EvaluationScore
			row.GroundTruth = a.GroundTruth
		}
		report.Scores = append(report.Scores, row)
	}
	return report, nil
}

func (s *projectService) MarkOutdatedForDocument(documentID string) error {
	completed, err := s.projectRepo.FindByStatus(model.ProjectStatusCompleted)
	if err != nil {
		return err
	}
	for i := range completed {
		if !completed[i].ScopeContains(documentID) {
			continue
		}
		if err := s.projectRepo.UpdateStatus(completed[i].ID, model.ProjectStatusOutdated); err != nil {
			return err
		}
		log.Infof("[Orchestrator] project %s marked OUTDATED after document %s was indexed", completed[i].ID, documentID)
	}
	return nil
}

func (s *projectService) getProject(projectID string) (*model.Project, error) {
	project, err := s.projectRepo.GetByID(projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "project %s not found", projectID)
		}
		return nil, err
	}
	return project, nil
}

func (s *projectService) toDTO(project *model.Project) (*model.ProjectDTO, error) {
	count, err := s.answerRepo.CountByProjectID(project.ID)
	if err != nil {
		return nil, err
	}
	return &model.ProjectDTO{Project: *project, AnsweredCount: int(count)}, nil
}

// dispatch writes the PENDING job row, then enqueues the task. A failed
// enqueue fails the job immediately so the row never dangles.
func (s *projectService) dispatch(ctx context.Context, jobType, targetID, message string, task tasks.JobTask) (*model.Job, error) {
	job, err := s.jobService.Create(jobType, targetID, message)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	task.JobID = job.ID
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		_ = s.jobService.Fail(job.ID, apperr.Wrap(apperr.KindUpstreamFailure, "failed to enqueue task", err))
		return nil, fmt.Errorf("failed to dispatch task: %w", err)
	}
	return job, nil
}
