// Package service contains the business logic of the questionnaire agent.
package service

import (
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/pkg/log"
)

// JobService is the tracker for asynchronous work units. Every async
// operation writes a PENDING job row before it is dispatched, so a client
// polling the returned id always finds it.
type JobService interface {
	Create(jobType, targetID, message string) (*model.Job, error)
	MarkRunning(jobID, message string) error
	// UpdateProgress advances the job's progress. Progress never
	// decreases within a job's lifetime; stale updates are dropped.
	UpdateProgress(jobID string, progress float64, message string) error
	Complete(jobID, message string) error
	Fail(jobID string, failure error) error
	Get(jobID string) (*model.Job, error)
	ListActive() ([]model.Job, error)
	RequestCancel(jobID string) error
	CancelRequested(jobID string) bool
	// Subscribe registers a listener for job updates; the returned
	// function unsubscribes it. Slow listeners miss updates rather than
	// blocking workers.
	Subscribe() (<-chan model.Job, func())
	// StartRetentionSweeper garbage-collects terminal jobs older than the
	// retention window until stop is closed.
	StartRetentionSweeper(stop <-chan struct{}, interval, retention time.Duration)
}

type jobService struct {
	jobRepo repository.JobRepository

	mu          sync.Mutex
	subscribers map[int]chan model.Job
	nextSubID   int
}

// NewJobService creates a JobService.
func NewJobService(jobRepo repository.JobRepository) JobService {
	return &jobService{
		jobRepo:     jobRepo,
		subscribers: make(map[int]chan model.Job),
	}
}

func (s *jobService) Create(jobType, targetID, message string) (*model.Job, error) {
	job := &model.Job{
		ID:       model.NewID("job"),
		Type:     jobType,
		Status:   model.JobStatusPending,
		Progress: 0,
		Message:  message,
		TargetID: targetID,
	}
	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}
	s.publish(job.ID)
	return job, nil
}

func (s *jobService) MarkRunning(jobID, message string) error {
	fields := map[string]interface{}{"status": model.JobStatusRunning}
	if message != "" {
		fields["message"] = message
	}
	if err := s.jobRepo.Updates(jobID, fields); err != nil {
		return err
	}
	s.publish(jobID)
	return nil
}

func (s *jobService) UpdateProgress(jobID string, progress float64, message string) error {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return err
	}
	if progress < job.Progress {
		// Monotonicity guard: concurrent units may report out of order.
		progress = job.Progress
	}
	if progress > 1 {
		progress = 1
	}
	fields := map[string]interface{}{"progress": progress}
	if message != "" {
		fields["message"] = message
	}
	if err := s.jobRepo.Updates(jobID, fields); err != nil {
		return err
	}
	s.publish(jobID)
	return nil
}

func (s *jobService) Complete(jobID, message string) error {
	if err := s.jobRepo.Updates(jobID, map[string]interface{}{
		"status":   model.JobStatusCompleted,
		"progress": 1.0,
		"message":  message,
	}); err != nil {
		return err
	}
	s.publish(jobID)
	return nil
}

func (s *jobService) Fail(jobID string, failure error) error {
	if failure == nil {
		failure = errors.New("unknown failure")
	}
	if err := s.jobRepo.Updates(jobID, map[string]interface{}{
		"status":     model.JobStatusFailed,
		"error":      failure.Error(),
		"error_kind": string(apperr.KindOf(failure)),
	}); err != nil {
		return err
	}
	s.publish(jobID)
	return nil
}

func (s *jobService) Get(jobID string) (*model.Job, error) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "job %s not found", jobID)
		}
		return nil, err
	}
	return job, nil
}

func (s *jobService) ListActive() ([]model.Job, error) {
	return s.jobRepo.FindActive()
}

func (s *jobService) RequestCancel(jobID string) error {
	job, err := s.Get(jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return apperr.Newf(apperr.KindInvalidInput, "job %s already finished", jobID)
	}
	if err := s.jobRepo.SetCancelRequested(jobID); err != nil {
		return err
	}
	s.publish(jobID)
	return nil
}

// CancelRequested is the cooperative cancellation check workers call
// between units of work. Lookup failures read as "keep going" so a
// transient DB error cannot cancel a healthy job.
func (s *jobService) CancelRequested(jobID string) bool {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return false
	}
	return job.CancelRequested
}

func (s *jobService) Subscribe() (<-chan model.Job, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan model.Job, 16)
	s.subscribers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(c)
		}
	}
}

// publish pushes the latest committed snapshot of the job to subscribers.
func (s *jobService) publish(jobID string) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- *job:
		default:
		}
	}
}

func (s *jobService) StartRetentionSweeper(stop <-chan struct{}, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				removed, err := s.jobRepo.DeleteTerminalBefore(time.Now().Add(-retention))
				if err != nil {
					log.Error("job retention sweep failed", err)
					continue
				}
				if removed > 0 {
					log.Infof("job retention sweep removed %d finished jobs", removed)
				}
			}
		}
	}()
}
