package repository

import (
	"time"

	"gorm.io/gorm"

	"questionnaire-agent-go/internal/model"
)

// JobRepository persists job records.
type JobRepository interface {
	Create(job *model.Job) error
	GetByID(id string) (*model.Job, error)
	Updates(id string, fields map[string]interface{}) error
	FindActive() ([]model.Job, error)
	SetCancelRequested(id string) error
	// DeleteTerminalBefore sweeps COMPLETED/FAILED jobs last touched
	// before the cutoff. Returns the number of rows removed.
	DeleteTerminalBefore(cutoff time.Time) (int64, error)
}

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a JobRepository.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(job *model.Job) error {
	return r.db.Create(job).Error
}

func (r *jobRepository) GetByID(id string) (*model.Job, error) {
	var job model.Job
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) Updates(id string, fields map[string]interface{}) error {
	return r.db.Model(&model.Job{}).Where("id = ?", id).Updates(fields).Error
}

func (r *jobRepository) FindActive() ([]model.Job, error) {
	var jobs []model.Job
	err := r.db.Where("status IN ?", []string{model.JobStatusPending, model.JobStatusRunning}).
		Order("created_at asc").Find(&jobs).Error
	return jobs, err
}

func (r *jobRepository) SetCancelRequested(id string) error {
	return r.db.Model(&model.Job{}).Where("id = ?", id).Update("cancel_requested", true).Error
}

func (r *jobRepository) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("status IN ? AND updated_at < ?",
		[]string{model.JobStatusCompleted, model.JobStatusFailed}, cutoff).
		Delete(&model.Job{})
	return result.RowsAffected, result.Error
}
