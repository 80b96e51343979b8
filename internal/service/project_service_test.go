package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
)

func projectFixture(dispatcher *fakeDispatcher, projects ...*model.Project) (ProjectService, *fakeProjectRepo, *fakeQuestionRepo, *fakeAnswerRepo, *fakeLockRepo) {
	projectRepo := newFakeProjectRepo(projects...)
	questionRepo := &fakeQuestionRepo{}
	answerRepo := newFakeAnswerRepo()
	lockRepo := newFakeLockRepo()
	jobService := NewJobService(newFakeJobRepo())
	svc := NewProjectService(projectRepo, questionRepo, answerRepo, jobService, dispatcher, lockRepo, time.Minute)
	return svc, projectRepo, questionRepo, answerRepo, lockRepo
}

func TestCreateProjectDispatchesJob(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, projectRepo, _, _, _ := projectFixture(dispatcher)

	project, job, err := svc.Create(context.Background(), "DD 2026", "questionnaires/dd.docx", "")
	require.NoError(t, err)

	assert.Equal(t, model.ScopeAllDocs, project.DocumentScope)
	assert.Equal(t, model.ProjectStatusProcessing, project.Status)
	assert.Equal(t, model.JobTypeProjectCreation, job.Type)
	assert.Equal(t, model.JobStatusPending, job.Status)

	// The project row exists before the task hits the queue.
	_, err = projectRepo.GetByID(project.ID)
	require.NoError(t, err)

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, job.ID, dispatcher.dispatched[0].JobID)
	assert.Equal(t, project.ID, dispatcher.dispatched[0].ProjectID)
}

func TestCreateProjectValidatesInput(t *testing.T) {
	svc, _, _, _, _ := projectFixture(&fakeDispatcher{})
	_, _, err := svc.Create(context.Background(), "", "path", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestCreateProjectDispatchFailureFailsJob(t *testing.T) {
	dispatcher := &fakeDispatcher{err: assert.AnError}
	projectRepo := newFakeProjectRepo()
	jobRepo := newFakeJobRepo()
	jobService := NewJobService(jobRepo)
	svc := NewProjectService(projectRepo, &fakeQuestionRepo{}, newFakeAnswerRepo(), jobService, dispatcher, newFakeLockRepo(), time.Minute)

	_, _, err := svc.Create(context.Background(), "p", "q.docx", "")
	require.Error(t, err)

	// The orphaned job row must be FAILED, not left PENDING forever.
	active, ferr := jobService.ListActive()
	require.NoError(t, ferr)
	assert.Empty(t, active)
}

func TestResumeFlipsProjectToProcessing(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, projectRepo, _, _, _ := projectFixture(dispatcher,
		&model.Project{ID: "proj_1", Status: model.ProjectStatusFailed})

	job, err := svc.Resume(context.Background(), "proj_1", true)
	require.NoError(t, err)
	assert.Equal(t, model.JobTypeBulkAnswer, job.Type)

	project, err := projectRepo.GetByID("proj_1")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusProcessing, project.Status)

	require.Len(t, dispatcher.dispatched, 1)
	assert.True(t, dispatcher.dispatched[0].Force)
}

func TestGenerateSingleHoldsLock(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _, questionRepo, _, _ := projectFixture(dispatcher,
		&model.Project{ID: "proj_1", Status: model.ProjectStatusCompleted})
	questionRepo.questions = []*model.Question{{ID: "q_1", ProjectID: "proj_1"}}

	job, err := svc.GenerateSingle(context.Background(), "proj_1", "q_1", false)
	require.NoError(t, err)
	assert.Equal(t, model.JobTypeSingleAnswer, job.Type)

	// A second request for the same question conflicts until the worker
	// releases the lock.
	_, err = svc.GenerateSingle(context.Background(), "proj_1", "q_1", false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindResourceBusy, apperr.KindOf(err))
}

func TestGenerateSingleUnknownQuestion(t *testing.T) {
	svc, _, _, _, _ := projectFixture(&fakeDispatcher{},
		&model.Project{ID: "proj_1"})
	_, err := svc.GenerateSingle(context.Background(), "proj_1", "q_missing", false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGenerateSingleForeignQuestion(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _, questionRepo, _, _ := projectFixture(dispatcher,
		&model.Project{ID: "proj_1"})
	questionRepo.questions = []*model.Question{{ID: "q_1", ProjectID: "proj_other"}}

	_, err := svc.GenerateSingle(context.Background(), "proj_1", "q_1", false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestEvaluateRequiresGroundTruth(t *testing.T) {
	svc, _, _, _, _ := projectFixture(&fakeDispatcher{}, &model.Project{ID: "proj_1"})
	_, err := svc.Evaluate(context.Background(), "proj_1", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestEvaluateDispatchesEvaluationJob(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _, _, _, _ := projectFixture(dispatcher, &model.Project{ID: "proj_1"})

	job, err := svc.Evaluate(context.Background(), "proj_1", map[string]string{"q_1": "truth"})
	require.NoError(t, err)
	assert.Equal(t, model.JobTypeEvaluation, job.Type)
	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, "truth", dispatcher.dispatched[0].GroundTruth["q_1"])
}

func TestMarkOutdatedForDocument(t *testing.T) {
	svc, projectRepo, _, _, _ := projectFixture(&fakeDispatcher{},
		&model.Project{ID: "proj_all", Status: model.ProjectStatusCompleted, DocumentScope: model.ScopeAllDocs},
		&model.Project{ID: "proj_scoped", Status: model.ProjectStatusCompleted, DocumentScope: "doc_x,doc_y"},
		&model.Project{ID: "proj_other", Status: model.ProjectStatusCompleted, DocumentScope: "doc_z"},
		&model.Project{ID: "proj_running", Status: model.ProjectStatusProcessing, DocumentScope: model.ScopeAllDocs},
	)

	require.NoError(t, svc.MarkOutdatedForDocument("doc_x"))

	for id, want := range map[string]string{
		"proj_all":     model.ProjectStatusOutdated,
		"proj_scoped":  model.ProjectStatusOutdated,
		"proj_other":   model.ProjectStatusCompleted,
		"proj_running": model.ProjectStatusProcessing,
	} {
		p, err := projectRepo.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, want, p.Status, id)
	}
}

func TestGetProjectIncludesAnsweredCount(t *testing.T) {
	svc, _, _, answerRepo, _ := projectFixture(&fakeDispatcher{},
		&model.Project{ID: "proj_1", QuestionCount: 3})
	require.NoError(t, answerRepo.Upsert(&model.Answer{ID: "ans_1", ProjectID: "proj_1", QuestionID: "q_1"}))
	require.NoError(t, answerRepo.Upsert(&model.Answer{ID: "ans_2", ProjectID: "proj_1", QuestionID: "q_2"}))

	dto, err := svc.GetProject("proj_1")
	require.NoError(t, err)
	assert.Equal(t, 2, dto.AnsweredCount)
	assert.Equal(t, 3, dto.QuestionCount)
}

func TestEvaluationReport(t *testing.T) {
	svc, projectRepo, questionRepo, answerRepo, _ := projectFixture(&fakeDispatcher{},
		&model.Project{ID: "proj_1"})
	questionRepo.questions = []*model.Question{
		{ID: "q_1", ProjectID: "proj_1", Text: "First?", Order: 1},
		{ID: "q_2", ProjectID: "proj_1", Text: "Second?", Order: 2},
	}
	score := 0.75
	truth := "the truth"
	require.NoError(t, answerRepo.Upsert(&model.Answer{
		ID: "ans_1", ProjectID: "proj_1", QuestionID: "q_1",
		AnswerText: "answered", EvaluationScore: &score, GroundTruth: &truth,
	}))
	require.NoError(t, projectRepo.SetAverageEvaluationScore("proj_1", score))

	report, err := svc.EvaluationReport("proj_1")
	require.NoError(t, err)
	assert.Equal(t, "proj_1", report.ProjectID)
	require.NotNil(t, report.AverageScore)
	assert.Equal(t, score, *report.AverageScore)
	require.Len(t, report.Scores, 2)
	require.NotNil(t, report.Scores[0].Score)
	assert.Equal(t, score, *report.Scores[0].Score)
	// The unevaluated question appears without a score.
	assert.Nil(t, report.Scores[1].Score)
}
