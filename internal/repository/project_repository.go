package repository

import (
	"gorm.io/gorm"

	"questionnaire-agent-go/internal/model"
)

// ProjectRepository persists projects and their questions.
type ProjectRepository interface {
	// CreateWithQuestions writes the project and its parsed questions in
	// one transaction, so a project is never visible without its items.
	CreateWithQuestions(project *model.Project, questions []*model.Question) error
	// AttachQuestions inserts the parsed questions of an existing project
	// and updates its question count in one transaction.
	AttachQuestions(projectID string, questions []*model.Question) error
	GetByID(id string) (*model.Project, error)
	FindAll() ([]model.Project, error)
	UpdateStatus(id, status string) error
	SetFailed(id, lastError string) error
	SetAverageEvaluationScore(id string, score float64) error
	FindByStatus(status string) ([]model.Project, error)
}

type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a ProjectRepository.
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) CreateWithQuestions(project *model.Project, questions []*model.Question) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		return tx.CreateInBatches(questions, 100).Error
	})
}

func (r *projectRepository) AttachQuestions(projectID string, questions []*model.Question) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if len(questions) > 0 {
			if err := tx.CreateInBatches(questions, 100).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.Project{}).Where("id = ?", projectID).
			Update("question_count", len(questions)).Error
	})
}

func (r *projectRepository) GetByID(id string) (*model.Project, error) {
	var project model.Project
	if err := r.db.Where("id = ?", id).First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *projectRepository) FindAll() ([]model.Project, error) {
	var projects []model.Project
	err := r.db.Order("created_at desc").Find(&projects).Error
	return projects, err
}

func (r *projectRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&model.Project{}).Where("id = ?", id).Update("status", status).Error
}

// SetFailed records the first unrecoverable error alongside the FAILED
// status so the UI can offer a resume action.
func (r *projectRepository) SetFailed(id, lastError string) error {
	return r.db.Model(&model.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     model.ProjectStatusFailed,
		"last_error": lastError,
	}).Error
}

func (r *projectRepository) SetAverageEvaluationScore(id string, score float64) error {
	return r.db.Model(&model.Project{}).Where("id = ?", id).
		Update("average_evaluation_score", score).Error
}

func (r *projectRepository) FindByStatus(status string) ([]model.Project, error) {
	var projects []model.Project
	err := r.db.Where("status = ?", status).Find(&projects).Error
	return projects, err
}
