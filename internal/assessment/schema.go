package assessment

import (
	"encoding/json"
	"fmt"
	"strings"

	"exam-rag/internal/models"
)

// GeneratedAssessment is the shape the generation model must return.
type GeneratedAssessment struct {
	Title     string              `json:"title"`
	Questions []GeneratedQuestion `json:"questions"`
}

type GeneratedQuestion struct {
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Answer        string   `json:"answer"`
	SourceText    string   `json:"source_text"`
	PageNumber    int      `json:"page_number"`
}

// ParseGenerated decodes and validates the model output against the contract
// the prompt stated. Models sometimes wrap JSON in a markdown fence despite
// the instructions, so a leading/trailing fence is stripped before decoding.
// Any violation wraps models.ErrSchemaValidation.
func ParseGenerated(raw string, wantQuestions int, allowedTypes []string) (*GeneratedAssessment, error) {
	out := new(GeneratedAssessment)
	if err := json.Unmarshal([]byte(stripFence(raw)), out); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", models.ErrSchemaValidation, err)
	}
	if err := validateGenerated(out, wantQuestions, allowedTypes); err != nil {
		return nil, err
	}
	return out, nil
}

func validateGenerated(a *GeneratedAssessment, wantQuestions int, allowedTypes []string) error {
	if len(a.Questions) != wantQuestions {
		return fmt.Errorf("%w: got %d questions, want %d", models.ErrSchemaValidation, len(a.Questions), wantQuestions)
	}

	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = true
	}

	for i, q := range a.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("%w: question %d has empty text", models.ErrSchemaValidation, i)
		}
		if !models.ValidQuestionType(q.Type) {
			return fmt.Errorf("%w: question %d has unknown type %q", models.ErrSchemaValidation, i, q.Type)
		}
		if len(allowed) > 0 && !allowed[q.Type] {
			return fmt.Errorf("%w: question %d type %q not requested", models.ErrSchemaValidation, i, q.Type)
		}
		if strings.TrimSpace(q.SourceText) == "" {
			return fmt.Errorf("%w: question %d missing source_text", models.ErrSchemaValidation, i)
		}
		if q.PageNumber < 1 {
			return fmt.Errorf("%w: question %d has page_number %d", models.ErrSchemaValidation, i, q.PageNumber)
		}

		switch q.Type {
		case models.QuestionMultipleChoice:
			if len(q.Options) < 2 {
				return fmt.Errorf("%w: question %d needs at least 2 options", models.ErrSchemaValidation, i)
			}
			if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
				return fmt.Errorf("%w: question %d correct_answer %d out of range", models.ErrSchemaValidation, i, q.CorrectAnswer)
			}
		case models.QuestionTrueFalse:
			if len(q.Options) != 2 {
				return fmt.Errorf("%w: question %d must have exactly 2 options", models.ErrSchemaValidation, i)
			}
			if q.CorrectAnswer < 0 || q.CorrectAnswer > 1 {
				return fmt.Errorf("%w: question %d correct_answer %d out of range", models.ErrSchemaValidation, i, q.CorrectAnswer)
			}
		case models.QuestionShortAnswer:
			if len(q.Options) != 0 {
				return fmt.Errorf("%w: question %d must not carry options", models.ErrSchemaValidation, i)
			}
			if strings.TrimSpace(q.Answer) == "" {
				return fmt.Errorf("%w: question %d missing expected answer", models.ErrSchemaValidation, i)
			}
		}
	}
	return nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
