package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/pkg/llm"
	"questionnaire-agent-go/pkg/log"
)

const (
	// emptyEvidencePenalty reduces the oracle's confidence when no
	// evidence chunks back the answer.
	emptyEvidencePenalty = 0.5
	// citationSnippetRunes bounds the snippet stored on a citation.
	citationSnippetRunes = 200
)

const systemPrompt = `You are a due diligence expert. Answer the question based ONLY on the provided context.
If the answer is not in the context, state that it is not possible to answer.

Format your response as follows:
Answer: [brief, factual answer]
Confidence: [0.0 to 1.0]`

// GenerationService produces and persists cited answers.
type GenerationService interface {
	// GenerateAndStore retrieves evidence, calls the generation oracle
	// and upserts the question's answer. A MANUAL_UPDATED question is
	// never overwritten unless force is set.
	GenerateAndStore(ctx context.Context, project *model.Project, question *model.Question, force bool) (*model.Answer, error)
}

type generationService struct {
	retrieval    RetrievalService
	llmClient    llm.Client
	answerRepo   repository.AnswerRepository
	questionRepo repository.QuestionRepository
	topK         int
}

// NewGenerationService creates a GenerationService.
func NewGenerationService(retrieval RetrievalService, llmClient llm.Client, answerRepo repository.AnswerRepository, questionRepo repository.QuestionRepository, topK int) GenerationService {
	if topK <= 0 {
		topK = 5
	}
	return &generationService{
		retrieval:    retrieval,
		llmClient:    llmClient,
		answerRepo:   answerRepo,
		questionRepo: questionRepo,
		topK:         topK,
	}
}

func (s *generationService) GenerateAndStore(ctx context.Context, project *model.Project, question *model.Question, force bool) (*model.Answer, error) {
	if question.Status == model.QuestionStatusManualUpdated && !force {
		return nil, apperr.Newf(apperr.KindInvalidInput,
			"question %s has a manual answer; regeneration requires force", question.ID)
	}

	scopeIDs, allDocs := project.ScopeDocumentIDs()
	evidence, err := s.retrieval.Retrieve(ctx, question.Text, scopeIDs, allDocs, s.topK)
	if err != nil {
		return nil, err
	}

	answerText, oracleConfidence, err := s.callOracle(ctx, question.Text, evidence)
	if err != nil {
		return nil, err
	}

	confidence := oracleConfidence
	if len(evidence) == 0 {
		// No evidence keeps the answer below the oracle's baseline.
		confidence = oracleConfidence * emptyEvidencePenalty
	} else if top := evidence[0].Score; top < confidence {
		confidence = top
	}

	answer := &model.Answer{
		ID:              model.NewID("ans"),
		ProjectID:       project.ID,
		QuestionID:      question.ID,
		AnswerText:      answerText,
		ConfidenceScore: confidence,
		Citations:       buildCitations(evidence),
	}
	if err := s.answerRepo.Upsert(answer); err != nil {
		return nil, fmt.Errorf("failed to persist answer for question %s: %w", question.ID, err)
	}

	// A regenerated answer downgrades the question to AI_GENERATED; a
	// manual edit survives regeneration only via force, which also
	// resets the status.
	if err := s.questionRepo.UpdateStatus(question.ID, model.QuestionStatusAIGenerated); err != nil {
		return nil, fmt.Errorf("failed to update question status: %w", err)
	}
	question.Status = model.QuestionStatusAIGenerated

	log.Infof("[Generation] answered question %s (confidence %.2f, %d citations)",
		question.ID, confidence, len(answer.Citations))
	return answer, nil
}

// callOracle builds the grounding prompt and parses the oracle's
// "Answer:" / "Confidence:" response lines. Unparseable responses fall
// back to the full text with a neutral confidence of 0.5.
func (s *generationService) callOracle(ctx context.Context, questionText string, evidence []model.RetrievedChunk) (string, float64, error) {
	var contextBuilder strings.Builder
	for i, chunk := range evidence {
		if i > 0 {
			contextBuilder.WriteString("\n---\n")
		}
		contextBuilder.WriteString(chunk.TextContent)
	}
	contextText := contextBuilder.String()
	if contextText == "" {
		contextText = "(no context available)"
	}

	userPrompt := fmt.Sprintf("Question: %s\n\nContext:\n%s", questionText, contextText)
	content, err := s.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, nil)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.KindUpstreamFailure, "generation oracle call failed", err)
	}

	answerText, confidence := parseOracleResponse(content)
	return answerText, confidence, nil
}

// parseOracleResponse extracts the answer text and confidence from the
// oracle's formatted reply.
func parseOracleResponse(content string) (string, float64) {
	answerText := ""
	confidence := 0.5

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Answer:") {
			answerText = strings.TrimSpace(strings.TrimPrefix(line, "Answer:"))
		} else if strings.HasPrefix(line, "Confidence:") {
			raw := strings.TrimSpace(strings.TrimPrefix(line, "Confidence:"))
			if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 && parsed <= 1 {
				confidence = parsed
			}
		}
	}

	if answerText == "" {
		answerText = strings.TrimSpace(content)
	}
	return answerText, confidence
}

// buildCitations maps the evidence chunks onto citation records, one per
// distinct chunk, each carrying its retrieval similarity.
func buildCitations(evidence []model.RetrievedChunk) []model.Citation {
	citations := make([]model.Citation, 0, len(evidence))
	for _, chunk := range evidence {
		citations = append(citations, model.Citation{
			DocumentName: chunk.DocumentName,
			TextSnippet:  snippet(chunk.TextContent, citationSnippetRunes),
			Score:        chunk.Score,
		})
	}
	return citations
}

func snippet(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}
