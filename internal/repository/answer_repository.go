package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"questionnaire-agent-go/internal/model"
)

// AnswerRepository persists generated answers.
type AnswerRepository interface {
	// Upsert writes the answer keyed by question id, replacing the
	// previous text, confidence and citations wholesale and clearing
	// any evaluation score earned by the replaced text.
	Upsert(answer *model.Answer) error
	GetByID(id string) (*model.Answer, error)
	GetByQuestionID(questionID string) (*model.Answer, error)
	FindByProjectID(projectID string) ([]*model.Answer, error)
	CountByProjectID(projectID string) (int64, error)
	Save(answer *model.Answer) error
	SetEvaluation(answerID string, score float64, groundTruth string) error
	// AverageEvaluationScore returns the mean over all scored answers of
	// the project; ok is false when none are scored yet.
	AverageEvaluationScore(projectID string) (avg float64, ok bool, err error)
}

type answerRepository struct {
	db *gorm.DB
}

// NewAnswerRepository creates an AnswerRepository.
func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

func (r *answerRepository) Upsert(answer *model.Answer) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "question_id"}},
		// A regenerated answer invalidates the previous text's
		// evaluation, so the score and ground truth reset with it.
		DoUpdates: clause.AssignmentColumns([]string{
			"answer_text", "confidence_score", "citations",
			"evaluation_score", "ground_truth", "updated_at",
		}),
	}).Create(answer).Error
}

func (r *answerRepository) GetByID(id string) (*model.Answer, error) {
	var answer model.Answer
	if err := r.db.Where("id = ?", id).First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (r *answerRepository) GetByQuestionID(questionID string) (*model.Answer, error) {
	var answer model.Answer
	if err := r.db.Where("question_id = ?", questionID).First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (r *answerRepository) FindByProjectID(projectID string) ([]*model.Answer, error) {
	var answers []*model.Answer
	err := r.db.Where("project_id = ?", projectID).Find(&answers).Error
	return answers, err
}

func (r *answerRepository) CountByProjectID(projectID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Answer{}).Where("project_id = ?", projectID).Count(&count).Error
	return count, err
}

func (r *answerRepository) Save(answer *model.Answer) error {
	return r.db.Save(answer).Error
}

func (r *answerRepository) SetEvaluation(answerID string, score float64, groundTruth string) error {
	return r.db.Model(&model.Answer{}).Where("id = ?", answerID).Updates(map[string]interface{}{
		"evaluation_score": score,
		"ground_truth":     groundTruth,
	}).Error
}

func (r *answerRepository) AverageEvaluationScore(projectID string) (float64, bool, error) {
	var result struct {
		Avg   *float64
		Count int64
	}
	err := r.db.Model(&model.Answer{}).
		Select("AVG(evaluation_score) as avg, COUNT(evaluation_score) as count").
		Where("project_id = ? AND evaluation_score IS NOT NULL", projectID).
		Scan(&result).Error
	if err != nil {
		return 0, false, err
	}
	if result.Count == 0 || result.Avg == nil {
		return 0, false, nil
	}
	return *result.Avg, true, nil
}
