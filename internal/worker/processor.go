// Package worker executes job tasks consumed from Kafka.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"gorm.io/gorm"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/internal/pipeline"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/internal/service"
	"questionnaire-agent-go/pkg/log"
	"questionnaire-agent-go/pkg/tasks"
)

// DocumentIndexer runs the indexing pipeline for one document.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, documentID string, report pipeline.Progress, cancelled func() bool) error
}

// Processor routes consumed job tasks to their handlers and owns the job
// lifecycle on the worker side: RUNNING on pickup, progress while working,
// COMPLETED or FAILED at the end. It satisfies kafka.TaskProcessor.
type Processor struct {
	jobService     service.JobService
	projectService service.ProjectService
	generation     service.GenerationService
	evaluation     service.EvaluationService
	loader         service.DocumentLoader
	indexer        DocumentIndexer

	projectRepo  repository.ProjectRepository
	questionRepo repository.QuestionRepository
	answerRepo   repository.AnswerRepository
	lockRepo     repository.LockRepository

	maxRetries   int
	retryBackoff time.Duration
	lockTTL      time.Duration
}

// NewProcessor creates a Processor.
func NewProcessor(
	jobService service.JobService,
	projectService service.ProjectService,
	generation service.GenerationService,
	evaluation service.EvaluationService,
	loader service.DocumentLoader,
	indexer DocumentIndexer,
	projectRepo repository.ProjectRepository,
	questionRepo repository.QuestionRepository,
	answerRepo repository.AnswerRepository,
	lockRepo repository.LockRepository,
	maxRetries int,
	retryBackoff time.Duration,
	lockTTL time.Duration,
) *Processor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryBackoff <= 0 {
		retryBackoff = 2 * time.Second
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Processor{
		jobService:     jobService,
		projectService: projectService,
		generation:     generation,
		evaluation:     evaluation,
		loader:         loader,
		indexer:        indexer,
		projectRepo:    projectRepo,
		questionRepo:   questionRepo,
		answerRepo:     answerRepo,
		lockRepo:       lockRepo,
		maxRetries:     maxRetries,
		retryBackoff:   retryBackoff,
		lockTTL:        lockTTL,
	}
}

// Process executes one job task to completion. The returned error is for
// the consumer's logging only; job state is already persisted either way.
func (p *Processor) Process(ctx context.Context, task tasks.JobTask) error {
	log.Infof("[Worker] picked up job %s (%s)", task.JobID, task.Type)
	if err := p.jobService.MarkRunning(task.JobID, "Job started"); err != nil {
		// An unknown job id means the row was swept or the message is
		// stale; there is nothing to execute against. The API layer's
		// single-flight lock must still be returned or the question
		// stays wedged until the Redis TTL expires.
		log.Warnf("[Worker] cannot start job %s: %v", task.JobID, err)
		if task.Type == model.JobTypeSingleAnswer && task.QuestionID != "" {
			_ = p.lockRepo.ReleaseGenerationLock(context.Background(), task.QuestionID)
		}
		return nil
	}

	var err error
	switch task.Type {
	case model.JobTypeIndexing:
		err = p.runIndexing(ctx, task)
	case model.JobTypeProjectCreation:
		err = p.runProjectCreation(ctx, task)
	case model.JobTypeBulkAnswer:
		err = p.runBulkAnswer(ctx, task)
	case model.JobTypeSingleAnswer:
		err = p.runSingleAnswer(ctx, task)
	case model.JobTypeEvaluation:
		err = p.runEvaluation(ctx, task)
	default:
		err = apperr.Newf(apperr.KindInvalidInput, "unknown job type %q", task.Type)
	}

	if err != nil {
		log.Errorf("[Worker] job %s failed: %v", task.JobID, err)
		if ferr := p.jobService.Fail(task.JobID, err); ferr != nil {
			log.Errorf("[Worker] failed to record failure of job %s: %v", task.JobID, ferr)
		}
		return err
	}
	return nil
}

func (p *Processor) runIndexing(ctx context.Context, task tasks.JobTask) error {
	report := func(fraction float64, message string) {
		if err := p.jobService.UpdateProgress(task.JobID, fraction, message); err != nil {
			log.Warnf("[Worker] progress update for job %s dropped: %v", task.JobID, err)
		}
	}
	cancelled := func() bool { return p.jobService.CancelRequested(task.JobID) }

	if err := p.withRetry(ctx, "index document "+task.DocumentID, func() error {
		return p.indexer.IndexDocument(ctx, task.DocumentID, report, cancelled)
	}); err != nil {
		return err
	}

	// A freshly indexed document invalidates answers of completed
	// projects whose scope covers it.
	if err := p.projectService.MarkOutdatedForDocument(task.DocumentID); err != nil {
		log.Errorf("[Worker] failed to flag outdated projects for document %s: %v", task.DocumentID, err)
	}
	return p.jobService.Complete(task.JobID, "Document indexed")
}

func (p *Processor) runProjectCreation(ctx context.Context, task tasks.JobTask) error {
	project, err := p.projectRepo.GetByID(task.ProjectID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "project "+task.ProjectID+" not found", err)
	}

	p.progress(task.JobID, 0.05, "Parsing questionnaire...")
	var text string
	if err := p.withRetry(ctx, "load questionnaire", func() error {
		var lerr error
		text, lerr = p.loader.Load(ctx, project.QuestionnaireSource, path.Base(project.QuestionnaireSource))
		return lerr
	}); err != nil {
		return p.failProject(project.ID, err)
	}

	questions, err := service.ParseQuestionnaire(text, project.ID)
	if err != nil {
		return p.failProject(project.ID, err)
	}
	if err := p.projectRepo.AttachQuestions(project.ID, questions); err != nil {
		return p.failProject(project.ID, fmt.Errorf("failed to store questions: %w", err))
	}
	log.Infof("[Worker] project %s parsed into %d questions", project.ID, len(questions))
	p.progress(task.JobID, 0.1, fmt.Sprintf("Parsed %d questions, generating answers...", len(questions)))

	return p.generateProject(ctx, task, project, false)
}

func (p *Processor) runBulkAnswer(ctx context.Context, task tasks.JobTask) error {
	project, err := p.projectRepo.GetByID(task.ProjectID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "project "+task.ProjectID+" not found", err)
	}
	return p.generateProject(ctx, task, project, task.Force)
}

// generateProject walks the project's questions in questionnaire order and
// generates the missing answers. The first unrecoverable error fails both
// the job and the project; already generated answers survive so a resume
// picks up where this run stopped.
func (p *Processor) generateProject(ctx context.Context, task tasks.JobTask, project *model.Project, force bool) error {
	questions, err := p.questionRepo.FindByProjectID(project.ID)
	if err != nil {
		return p.failProject(project.ID, err)
	}
	if len(questions) == 0 {
		return p.failProject(project.ID, apperr.New(apperr.KindInvalidInput, "project has no questions"))
	}

	for i, question := range questions {
		if p.jobService.CancelRequested(task.JobID) {
			return p.failProject(project.ID, apperr.New(apperr.KindInvalidInput, "generation cancelled"))
		}

		if skip, err := p.shouldSkip(question, force); err != nil {
			return p.failProject(project.ID, err)
		} else if skip {
			p.progress(task.JobID, 0.1+0.9*float64(i+1)/float64(len(questions)),
				fmt.Sprintf("Question %d/%d already answered", i+1, len(questions)))
			continue
		}

		if err := p.generateOne(ctx, project, question, force); err != nil {
			// Busy means another worker holds the question; treat it as
			// handled elsewhere rather than failing the whole project.
			if apperr.KindOf(err) == apperr.KindResourceBusy {
				log.Warnf("[Worker] question %s busy, skipping", question.ID)
				continue
			}
			return p.failProject(project.ID, err)
		}
		p.progress(task.JobID, 0.1+0.9*float64(i+1)/float64(len(questions)),
			fmt.Sprintf("Answered question %d/%d", i+1, len(questions)))
	}

	// A question skipped as busy may still fail in the other worker, so
	// COMPLETED is only recorded once every question actually has an
	// answer.
	answered, err := p.answerRepo.CountByProjectID(project.ID)
	if err != nil {
		return p.failProject(project.ID, err)
	}
	if int(answered) < len(questions) {
		return p.jobService.Complete(task.JobID,
			fmt.Sprintf("Answered %d of %d questions; the rest are in flight elsewhere", answered, len(questions)))
	}

	if err := p.projectRepo.UpdateStatus(project.ID, model.ProjectStatusCompleted); err != nil {
		return err
	}
	return p.jobService.Complete(task.JobID, "All answers generated")
}

// shouldSkip decides whether a bulk run leaves a question untouched. Without
// force, answered questions and manual edits are preserved.
func (p *Processor) shouldSkip(question *model.Question, force bool) (bool, error) {
	if force {
		return false, nil
	}
	if question.Status == model.QuestionStatusManualUpdated ||
		question.Status == model.QuestionStatusConfirmed {
		return true, nil
	}
	_, err := p.answerRepo.GetByQuestionID(question.ID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (p *Processor) generateOne(ctx context.Context, project *model.Project, question *model.Question, force bool) error {
	acquired, err := p.lockRepo.AcquireGenerationLock(ctx, question.ID, p.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if !acquired {
		return apperr.Newf(apperr.KindResourceBusy, "question %s is locked", question.ID)
	}
	defer func() {
		_ = p.lockRepo.ReleaseGenerationLock(context.Background(), question.ID)
	}()

	return p.withRetry(ctx, "generate answer for question "+question.ID, func() error {
		_, gerr := p.generation.GenerateAndStore(ctx, project, question, force)
		return gerr
	})
}

func (p *Processor) runSingleAnswer(ctx context.Context, task tasks.JobTask) error {
	// The API layer acquired the generation lock when it accepted the
	// request; release it here regardless of outcome.
	defer func() {
		_ = p.lockRepo.ReleaseGenerationLock(context.Background(), task.QuestionID)
	}()

	project, err := p.projectRepo.GetByID(task.ProjectID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "project "+task.ProjectID+" not found", err)
	}
	question, err := p.questionRepo.GetByID(task.QuestionID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "question "+task.QuestionID+" not found", err)
	}

	p.progress(task.JobID, 0.2, "Generating answer...")
	if err := p.withRetry(ctx, "generate answer for question "+question.ID, func() error {
		_, gerr := p.generation.GenerateAndStore(ctx, project, question, task.Force)
		return gerr
	}); err != nil {
		return err
	}
	return p.jobService.Complete(task.JobID, "Answer generated")
}

func (p *Processor) runEvaluation(ctx context.Context, task tasks.JobTask) error {
	questionIDs := make([]string, 0, len(task.GroundTruth))
	for id := range task.GroundTruth {
		questionIDs = append(questionIDs, id)
	}
	sort.Strings(questionIDs)

	evaluated := 0
	for i, questionID := range questionIDs {
		if p.jobService.CancelRequested(task.JobID) {
			return apperr.New(apperr.KindInvalidInput, "evaluation cancelled")
		}
		score, err := p.evaluation.EvaluateEntry(ctx, task.ProjectID, questionID, task.GroundTruth[questionID])
		if err != nil {
			// Unknown or unanswered questions are skipped; the report
			// shows them without a score.
			if apperr.KindOf(err) == apperr.KindNotFound {
				log.Warnf("[Worker] evaluation entry %s skipped: %v", questionID, err)
				continue
			}
			return err
		}
		evaluated++
		p.progress(task.JobID, float64(i+1)/float64(len(questionIDs)),
			fmt.Sprintf("Evaluated %d/%d entries (last score %.2f)", i+1, len(questionIDs), score))
	}

	if err := p.evaluation.RecomputeProjectAverage(task.ProjectID); err != nil {
		return err
	}
	return p.jobService.Complete(task.JobID, fmt.Sprintf("Evaluated %d of %d entries", evaluated, len(questionIDs)))
}

func (p *Processor) failProject(projectID string, cause error) error {
	if err := p.projectRepo.SetFailed(projectID, cause.Error()); err != nil {
		log.Errorf("[Worker] failed to mark project %s FAILED: %v", projectID, err)
	}
	return cause
}

func (p *Processor) progress(jobID string, fraction float64, message string) {
	if err := p.jobService.UpdateProgress(jobID, fraction, message); err != nil {
		log.Warnf("[Worker] progress update for job %s dropped: %v", jobID, err)
	}
}

// withRetry retries op with a fixed backoff while the failure is retryable.
// Input and consistency failures surface immediately.
func (p *Processor) withRetry(ctx context.Context, what string, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !apperr.Retryable(err) || attempt >= p.maxRetries {
			return err
		}
		log.Warnf("[Worker] %s failed (attempt %d/%d), retrying: %v", what, attempt+1, p.maxRetries, err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.retryBackoff):
		}
	}
}
