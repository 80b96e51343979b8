// Package tasks defines the envelope for work units sent over Kafka.
package tasks

// JobTask is the message a worker consumes to execute one job. JobID
// references the job row written before dispatch; Type selects the handler;
// the remaining fields carry the per-type payload.
type JobTask struct {
	JobID string `json:"job_id"`
	Type  string `json:"type"`

	// Indexing payload.
	DocumentID string `json:"document_id,omitempty"`

	// Project payload.
	ProjectID string `json:"project_id,omitempty"`
	Force     bool   `json:"force,omitempty"`

	// Single-answer payload.
	QuestionID string `json:"question_id,omitempty"`

	// Evaluation payload: ground truth keyed by question id.
	GroundTruth map[string]string `json:"ground_truth,omitempty"`
}
