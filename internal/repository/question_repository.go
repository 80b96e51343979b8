package repository

import (
	"gorm.io/gorm"

	"questionnaire-agent-go/internal/model"
)

// QuestionRepository persists questionnaire items.
type QuestionRepository interface {
	GetByID(id string) (*model.Question, error)
	FindByProjectID(projectID string) ([]*model.Question, error)
	UpdateStatus(id, status string) error
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository creates a QuestionRepository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetByID(id string) (*model.Question, error) {
	var question model.Question
	if err := r.db.Where("id = ?", id).First(&question).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

// FindByProjectID returns the project's questions in questionnaire order.
func (r *questionRepository) FindByProjectID(projectID string) ([]*model.Question, error) {
	var questions []*model.Question
	err := r.db.Where("project_id = ?", projectID).Order("question_order asc").Find(&questions).Error
	return questions, err
}

func (r *questionRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&model.Question{}).Where("id = ?", id).Update("status", status).Error
}
