package model

import "time"

// Citation links an answer to one evidence chunk. Citations are replaced
// wholesale when the answer is regenerated.
type Citation struct {
	DocumentName string  `json:"document_name"`
	TextSnippet  string  `json:"text_snippet"`
	PageNumber   *int    `json:"page_number,omitempty"`
	Score        float64 `json:"score"`
}

// Answer is the ORM model for the generated answer of one question. At most
// one live answer exists per question.
type Answer struct {
	ID              string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID       string     `gorm:"type:varchar(64);not null;index" json:"project_id"`
	QuestionID      string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"question_id"`
	AnswerText      string     `gorm:"type:text" json:"answer_text"`
	ConfidenceScore float64    `gorm:"not null;default:0" json:"confidence_score"`
	Citations       []Citation `gorm:"serializer:json;type:text" json:"citations"`
	EvaluationScore *float64   `gorm:"default:null" json:"evaluation_score,omitempty"`
	GroundTruth     *string    `gorm:"type:text;default:null" json:"ground_truth,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName names the backing table.
func (Answer) TableName() string {
	return "answers"
}
