package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/pkg/embedding"
	"questionnaire-agent-go/pkg/log"
	"questionnaire-agent-go/pkg/vectormath"
)

// EvaluationService scores generated answers against ground truth.
type EvaluationService interface {
	// EvaluateEntry scores one question's answer against the provided
	// ground truth and stores the result on the answer. Unknown question
	// ids and unanswered questions fail with NotFound so the caller can
	// skip the entry and keep going.
	EvaluateEntry(ctx context.Context, projectID, questionID, groundTruth string) (float64, error)
	// RecomputeProjectAverage refreshes the project's mean evaluation
	// score over all scored answers.
	RecomputeProjectAverage(projectID string) error
}

type evaluationService struct {
	embeddingClient embedding.Client
	answerRepo      repository.AnswerRepository
	questionRepo    repository.QuestionRepository
	projectRepo     repository.ProjectRepository
}

// NewEvaluationService creates an EvaluationService.
func NewEvaluationService(embeddingClient embedding.Client, answerRepo repository.AnswerRepository, questionRepo repository.QuestionRepository, projectRepo repository.ProjectRepository) EvaluationService {
	return &evaluationService{
		embeddingClient: embeddingClient,
		answerRepo:      answerRepo,
		questionRepo:    questionRepo,
		projectRepo:     projectRepo,
	}
}

func (s *evaluationService) EvaluateEntry(ctx context.Context, projectID, questionID, groundTruth string) (float64, error) {
	question, err := s.questionRepo.GetByID(questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.Newf(apperr.KindNotFound, "unknown question %s", questionID)
		}
		return 0, err
	}
	if question.ProjectID != projectID {
		return 0, apperr.Newf(apperr.KindNotFound, "question %s does not belong to project %s", questionID, projectID)
	}

	answer, err := s.answerRepo.GetByQuestionID(questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.Newf(apperr.KindNotFound, "question %s has no answer to evaluate", questionID)
		}
		return 0, err
	}
	if answer.AnswerText == "" || groundTruth == "" {
		return 0, apperr.Newf(apperr.KindInvalidInput, "question %s has empty answer or ground truth", questionID)
	}

	score, err := s.semanticSimilarity(ctx, answer.AnswerText, groundTruth)
	if err != nil {
		return 0, err
	}

	if err := s.answerRepo.SetEvaluation(answer.ID, score, groundTruth); err != nil {
		return 0, fmt.Errorf("failed to store evaluation for answer %s: %w", answer.ID, err)
	}
	log.Infof("[Evaluation] question %s scored %.3f", questionID, score)
	return score, nil
}

// semanticSimilarity embeds both texts and maps their cosine similarity to
// [0,1]. Surface overlap plays no role: the comparison happens in
// embedding space.
func (s *evaluationService) semanticSimilarity(ctx context.Context, answerText, groundTruth string) (float64, error) {
	answerVec, err := s.embeddingClient.CreateEmbedding(ctx, answerText)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstreamFailure, "failed to embed answer text", err)
	}
	truthVec, err := s.embeddingClient.CreateEmbedding(ctx, groundTruth)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstreamFailure, "failed to embed ground truth", err)
	}

	score, err := vectormath.SimilarityScore(answerVec, truthVec)
	if err != nil {
		return 0, fmt.Errorf("similarity computation failed: %w", err)
	}
	return score, nil
}

func (s *evaluationService) RecomputeProjectAverage(projectID string) error {
	avg, ok, err := s.answerRepo.AverageEvaluationScore(projectID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.projectRepo.SetAverageEvaluationScore(projectID, avg)
}
