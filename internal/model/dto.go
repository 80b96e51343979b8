package model

// ProjectDTO is a project enriched with its live answered count.
type ProjectDTO struct {
	Project
	AnsweredCount int `json:"answered_count"`
}

// ProjectInfoDTO bundles a project with its questions and answers for the
// detail view.
type ProjectInfoDTO struct {
	Project   ProjectDTO  `json:"project"`
	Questions []*Question `json:"questions"`
	Answers   []*Answer   `json:"answers"`
}

// QuestionScoreDTO is one row of an evaluation report.
type QuestionScoreDTO struct {
	QuestionID   string   `json:"question_id"`
	QuestionText string   `json:"question_text"`
	Score        *float64 `json:"score,omitempty"`
	GroundTruth  *string  `json:"ground_truth,omitempty"`
}

// EvaluationReportDTO is the stored evaluation outcome of a project.
type EvaluationReportDTO struct {
	ProjectID    string             `json:"project_id"`
	AverageScore *float64           `json:"average_score,omitempty"`
	Scores       []QuestionScoreDTO `json:"scores"`
}
