package service

import (
	"errors"

	"gorm.io/gorm"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/pkg/log"
)

// AnswerService handles manual edits to generated answers.
type AnswerService interface {
	// UpdateAnswer stores a human edit. The answer is resolved by id or,
	// when answerID is empty, by question id. The question moves to
	// reviewStatus (MANUAL_UPDATED when empty), which shields it from
	// non-forced regeneration.
	UpdateAnswer(answerID, questionID, answerText, reviewStatus string) (*model.Answer, error)
	GetByQuestionID(questionID string) (*model.Answer, error)
}

type answerService struct {
	answerRepo   repository.AnswerRepository
	questionRepo repository.QuestionRepository
}

// NewAnswerService creates an AnswerService.
func NewAnswerService(answerRepo repository.AnswerRepository, questionRepo repository.QuestionRepository) AnswerService {
	return &answerService{answerRepo: answerRepo, questionRepo: questionRepo}
}

func (s *answerService) UpdateAnswer(answerID, questionID, answerText, reviewStatus string) (*model.Answer, error) {
	if answerText == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "answer_text must not be empty")
	}
	switch reviewStatus {
	case "":
		reviewStatus = model.QuestionStatusManualUpdated
	case model.QuestionStatusManualUpdated, model.QuestionStatusConfirmed, model.QuestionStatusRejected:
	default:
		return nil, apperr.Newf(apperr.KindInvalidInput, "unsupported review status %q", reviewStatus)
	}

	answer, err := s.resolve(answerID, questionID)
	if err != nil {
		return nil, err
	}

	answer.AnswerText = answerText
	// A human-authored answer carries no model confidence.
	answer.ConfidenceScore = 1.0
	if err := s.answerRepo.Save(answer); err != nil {
		return nil, err
	}
	if err := s.questionRepo.UpdateStatus(answer.QuestionID, reviewStatus); err != nil {
		return nil, err
	}
	log.Infof("[Answer] answer %s updated manually, question %s -> %s", answer.ID, answer.QuestionID, reviewStatus)
	return answer, nil
}

func (s *answerService) GetByQuestionID(questionID string) (*model.Answer, error) {
	answer, err := s.answerRepo.GetByQuestionID(questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "no answer for question %s", questionID)
		}
		return nil, err
	}
	return answer, nil
}

func (s *answerService) resolve(answerID, questionID string) (*model.Answer, error) {
	if answerID != "" {
		answer, err := s.answerRepo.GetByID(answerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.Newf(apperr.KindNotFound, "answer %s not found", answerID)
			}
			return nil, err
		}
		return answer, nil
	}
	if questionID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "answer_id or question_id is required")
	}
	return s.GetByQuestionID(questionID)
}
