package service

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/pkg/llm"
	"questionnaire-agent-go/pkg/tasks"
)

// In-memory fakes for the repository and client interfaces the services
// depend on.

type fakeDocumentRepo struct {
	docs       []*model.Document
	markedByID map[string]int
}

func newFakeDocumentRepo(docs ...*model.Document) *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: docs, markedByID: map[string]int{}}
}

func (r *fakeDocumentRepo) Create(doc *model.Document) error {
	r.docs = append(r.docs, doc)
	return nil
}

func (r *fakeDocumentRepo) GetByID(id string) (*model.Document, error) {
	for _, d := range r.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeDocumentRepo) FindBySourcePath(sourcePath string) (*model.Document, error) {
	for _, d := range r.docs {
		if d.SourcePath == sourcePath {
			return d, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeDocumentRepo) FindAll() ([]model.Document, error) {
	out := make([]model.Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, *d)
	}
	return out, nil
}

// FindIndexedIDs preserves creation order and filters to INDEXED, the same
// contract the SQL implementation has.
func (r *fakeDocumentRepo) FindIndexedIDs(ids []string) ([]string, error) {
	allowed := map[string]bool{}
	for _, id := range ids {
		allowed[id] = true
	}
	var out []string
	for _, d := range r.docs {
		if d.Status != model.DocumentStatusIndexed {
			continue
		}
		if ids != nil && !allowed[d.ID] {
			continue
		}
		out = append(out, d.ID)
	}
	return out, nil
}

func (r *fakeDocumentRepo) UpdateStatus(id, status string) error {
	d, err := r.GetByID(id)
	if err != nil {
		return err
	}
	d.Status = status
	return nil
}

func (r *fakeDocumentRepo) MarkIndexed(id string, chunkCount int) error {
	d, err := r.GetByID(id)
	if err != nil {
		return err
	}
	d.Status = model.DocumentStatusIndexed
	d.ChunkCount = chunkCount
	now := time.Now()
	d.IndexedAt = &now
	r.markedByID[id]++
	return nil
}

type fakeQuestionRepo struct {
	questions []*model.Question
}

func (r *fakeQuestionRepo) GetByID(id string) (*model.Question, error) {
	for _, q := range r.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeQuestionRepo) FindByProjectID(projectID string) ([]*model.Question, error) {
	var out []*model.Question
	for _, q := range r.questions {
		if q.ProjectID == projectID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *fakeQuestionRepo) UpdateStatus(id, status string) error {
	q, err := r.GetByID(id)
	if err != nil {
		return err
	}
	q.Status = status
	return nil
}

type fakeAnswerRepo struct {
	byQuestion map[string]*model.Answer
}

func newFakeAnswerRepo() *fakeAnswerRepo {
	return &fakeAnswerRepo{byQuestion: map[string]*model.Answer{}}
}

func (r *fakeAnswerRepo) Upsert(answer *model.Answer) error {
	if existing, ok := r.byQuestion[answer.QuestionID]; ok {
		answer.ID = existing.ID
	}
	r.byQuestion[answer.QuestionID] = answer
	return nil
}

func (r *fakeAnswerRepo) GetByID(id string) (*model.Answer, error) {
	for _, a := range r.byQuestion {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAnswerRepo) GetByQuestionID(questionID string) (*model.Answer, error) {
	if a, ok := r.byQuestion[questionID]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAnswerRepo) FindByProjectID(projectID string) ([]*model.Answer, error) {
	var out []*model.Answer
	for _, a := range r.byQuestion {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAnswerRepo) CountByProjectID(projectID string) (int64, error) {
	answers, _ := r.FindByProjectID(projectID)
	return int64(len(answers)), nil
}

func (r *fakeAnswerRepo) Save(answer *model.Answer) error {
	r.byQuestion[answer.QuestionID] = answer
	return nil
}

func (r *fakeAnswerRepo) SetEvaluation(answerID string, score float64, groundTruth string) error {
	a, err := r.GetByID(answerID)
	if err != nil {
		return err
	}
	a.EvaluationScore = &score
	a.GroundTruth = &groundTruth
	return nil
}

func (r *fakeAnswerRepo) AverageEvaluationScore(projectID string) (float64, bool, error) {
	var sum float64
	var n int
	for _, a := range r.byQuestion {
		if a.ProjectID == projectID && a.EvaluationScore != nil {
			sum += *a.EvaluationScore
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

type fakeProjectRepo struct {
	projects []*model.Project
	attached map[string][]*model.Question
}

func newFakeProjectRepo(projects ...*model.Project) *fakeProjectRepo {
	return &fakeProjectRepo{projects: projects, attached: map[string][]*model.Question{}}
}

func (r *fakeProjectRepo) CreateWithQuestions(project *model.Project, questions []*model.Question) error {
	r.projects = append(r.projects, project)
	r.attached[project.ID] = questions
	return nil
}

func (r *fakeProjectRepo) AttachQuestions(projectID string, questions []*model.Question) error {
	r.attached[projectID] = questions
	p, err := r.GetByID(projectID)
	if err != nil {
		return err
	}
	p.QuestionCount = len(questions)
	return nil
}

func (r *fakeProjectRepo) GetByID(id string) (*model.Project, error) {
	for _, p := range r.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeProjectRepo) FindAll() ([]model.Project, error) {
	out := make([]model.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakeProjectRepo) UpdateStatus(id, status string) error {
	p, err := r.GetByID(id)
	if err != nil {
		return err
	}
	p.Status = status
	return nil
}

func (r *fakeProjectRepo) SetFailed(id, lastError string) error {
	p, err := r.GetByID(id)
	if err != nil {
		return err
	}
	p.Status = model.ProjectStatusFailed
	p.LastError = lastError
	return nil
}

func (r *fakeProjectRepo) SetAverageEvaluationScore(id string, score float64) error {
	p, err := r.GetByID(id)
	if err != nil {
		return err
	}
	p.AverageEvaluationScore = &score
	return nil
}

func (r *fakeProjectRepo) FindByStatus(status string) ([]model.Project, error) {
	var out []model.Project
	for _, p := range r.projects {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]*model.Job{}}
}

func (r *fakeJobRepo) Create(job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) GetByID(id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		copied := *j
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeJobRepo) Updates(id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			j.Status = v.(string)
		case "progress":
			j.Progress = v.(float64)
		case "message":
			j.Message = v.(string)
		case "error":
			j.Error = v.(string)
		case "error_kind":
			j.ErrorKind = v.(string)
		}
	}
	return nil
}

func (r *fakeJobRepo) FindActive() ([]model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Job
	for _, j := range r.jobs {
		if j.Status == model.JobStatusPending || j.Status == model.JobStatusRunning {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) SetCancelRequested(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	j.CancelRequested = true
	return nil
}

func (r *fakeJobRepo) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, j := range r.jobs {
		if j.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed, nil
}

type fakeLockRepo struct {
	mu    sync.Mutex
	held  map[string]bool
	fail  bool
	freed []string
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{held: map[string]bool{}}
}

func (r *fakeLockRepo) acquire(key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return false, context.DeadlineExceeded
	}
	if r.held[key] {
		return false, nil
	}
	r.held[key] = true
	return true, nil
}

func (r *fakeLockRepo) release(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, key)
	r.freed = append(r.freed, key)
	return nil
}

func (r *fakeLockRepo) AcquireGenerationLock(_ context.Context, questionID string, _ time.Duration) (bool, error) {
	return r.acquire("gen:" + questionID)
}

func (r *fakeLockRepo) ReleaseGenerationLock(_ context.Context, questionID string) error {
	return r.release("gen:" + questionID)
}

func (r *fakeLockRepo) AcquireIndexLock(_ context.Context, documentID string, _ time.Duration) (bool, error) {
	return r.acquire("idx:" + documentID)
}

func (r *fakeLockRepo) ReleaseIndexLock(_ context.Context, documentID string) error {
	return r.release("idx:" + documentID)
}

// fakeEmbedder returns deterministic vectors keyed by text so similarity is
// controllable from tests.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	for _, m := range messages {
		f.prompts = append(f.prompts, m.Content)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeSearcher struct {
	hits []model.RetrievedChunk
	err  error

	lastK   int
	lastIDs []string
}

func (f *fakeSearcher) SearchByVector(_ context.Context, _ []float32, k int, documentIDs []string) ([]model.RetrievedChunk, error) {
	f.lastK = k
	f.lastIDs = documentIDs
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeDispatcher struct {
	dispatched []tasks.JobTask
	err        error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, task tasks.JobTask) error {
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, task)
	return nil
}
