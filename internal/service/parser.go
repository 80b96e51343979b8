package service

import (
	"regexp"
	"strings"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
)

var (
	sectionPattern  = regexp.MustCompile(`^(\d+)\.\s+(.*)`)
	questionPattern = regexp.MustCompile(`^(\d+\.\d+)\s+(.*)`)
)

// ParseQuestionnaire splits extracted questionnaire text into ordered
// questions. Lines like "1. General" open a section; lines like
// "1.1 What is ...?" become questions within the current section.
// Questionnaires yielding no questions are rejected as invalid input.
func ParseQuestionnaire(text, projectID string) ([]*model.Question, error) {
	currentSection := "General"
	order := 0
	var questions []*model.Question

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := questionPattern.FindStringSubmatch(line); m != nil {
			order++
			questions = append(questions, &model.Question{
				ID:        model.NewID("q"),
				ProjectID: projectID,
				Section:   currentSection,
				Text:      m[2],
				Order:     order,
				Status:    model.QuestionStatusPending,
			})
			continue
		}
		if m := sectionPattern.FindStringSubmatch(line); m != nil {
			currentSection = m[2]
		}
	}

	if len(questions) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "questionnaire contains no recognizable questions")
	}
	return questions, nil
}
