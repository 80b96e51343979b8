package model

import (
	"strings"
	"time"
)

// Project statuses.
const (
	ProjectStatusProcessing = "PROCESSING"
	ProjectStatusCompleted  = "COMPLETED"
	ProjectStatusOutdated   = "OUTDATED"
	ProjectStatusFailed     = "FAILED"
)

// ScopeAllDocs is the document scope spanning every indexed document.
const ScopeAllDocs = "ALL_DOCS"

// Project is the ORM model for a questionnaire project.
type Project struct {
	ID                  string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name                string `gorm:"type:varchar(255);not null" json:"name"`
	QuestionnaireSource string `gorm:"type:varchar(512);not null" json:"questionnaire_source"`
	// DocumentScope is either ScopeAllDocs or a comma-joined set of
	// document ids.
	DocumentScope          string    `gorm:"type:text;not null" json:"document_scope"`
	Status                 string    `gorm:"type:varchar(16);not null;default:PROCESSING;index" json:"status"`
	QuestionCount          int       `gorm:"not null;default:0" json:"question_count"`
	AverageEvaluationScore *float64  `gorm:"default:null" json:"average_evaluation_score,omitempty"`
	LastError              string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName names the backing table.
func (Project) TableName() string {
	return "projects"
}

// ScopeDocumentIDs returns the explicit document ids of the scope, or
// allDocs=true when the scope spans every indexed document.
func (p *Project) ScopeDocumentIDs() (ids []string, allDocs bool) {
	if p.DocumentScope == "" || p.DocumentScope == ScopeAllDocs {
		return nil, true
	}
	for _, id := range strings.Split(p.DocumentScope, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, false
}

// ScopeContains reports whether a document participates in the project's
// retrieval scope.
func (p *Project) ScopeContains(documentID string) bool {
	ids, allDocs := p.ScopeDocumentIDs()
	if allDocs {
		return true
	}
	for _, id := range ids {
		if id == documentID {
			return true
		}
	}
	return false
}

// Question statuses. PENDING is the seed state before the first generation.
const (
	QuestionStatusPending       = "PENDING"
	QuestionStatusAIGenerated   = "AI_GENERATED"
	QuestionStatusManualUpdated = "MANUAL_UPDATED"
	QuestionStatusConfirmed     = "CONFIRMED"
	QuestionStatusRejected      = "REJECTED"
)

// Question is the ORM model for one parsed questionnaire item. Questions are
// created once at project creation and never reordered.
type Question struct {
	ID        string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID string `gorm:"type:varchar(64);not null;index" json:"project_id"`
	Section   string `gorm:"type:varchar(255)" json:"section"`
	Text      string `gorm:"type:text;not null" json:"text"`
	Order     int    `gorm:"column:question_order;not null" json:"order"`
	Status    string `gorm:"type:varchar(16);not null;default:PENDING" json:"status"`
}

// TableName names the backing table.
func (Question) TableName() string {
	return "questions"
}
