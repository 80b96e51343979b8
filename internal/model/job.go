package model

import "time"

// Job types.
const (
	JobTypeIndexing        = "INDEXING"
	JobTypeProjectCreation = "PROJECT_CREATION"
	JobTypeSingleAnswer    = "SINGLE_ANSWER"
	JobTypeBulkAnswer      = "BULK_ANSWER"
	JobTypeEvaluation      = "EVALUATION"
)

// Job statuses.
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// Job is the ORM model for one tracked asynchronous unit of work. A job row
// is written before the work is dispatched, so polling clients can always
// resolve a returned job id. Terminal rows are kept for the retention window
// and swept afterwards.
type Job struct {
	ID              string    `gorm:"primaryKey;type:varchar(96)" json:"id"`
	Type            string    `gorm:"type:varchar(24);not null" json:"type"`
	Status          string    `gorm:"type:varchar(16);not null;default:PENDING;index" json:"status"`
	Progress        float64   `gorm:"not null;default:0" json:"progress"`
	Message         string    `gorm:"type:text" json:"message"`
	Error           string    `gorm:"type:text" json:"error,omitempty"`
	ErrorKind       string    `gorm:"type:varchar(32)" json:"error_kind,omitempty"`
	TargetID        string    `gorm:"type:varchar(64);index" json:"target_id"`
	CancelRequested bool      `gorm:"not null;default:false" json:"cancel_requested"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName names the backing table.
func (Job) TableName() string {
	return "jobs"
}

// Terminal reports whether the job has finished, successfully or not.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
