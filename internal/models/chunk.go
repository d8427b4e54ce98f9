package models

// Chunk is a bounded span of extracted document text. Index is the chunk's
// position within the whole document, not within its page.
type Chunk struct {
	Text       string
	PageNumber int
	Index      int
	FileHash   string
}

// Question types a generated assessment may contain.
const (
	QuestionMultipleChoice = "multiple-choice"
	QuestionTrueFalse      = "true-false"
	QuestionShortAnswer    = "short-answer"
)

// AllowedQuestionTypes lists every type the generation schema accepts.
var AllowedQuestionTypes = []string{
	QuestionMultipleChoice,
	QuestionTrueFalse,
	QuestionShortAnswer,
}

// ValidQuestionType reports whether t is one of the known question types.
func ValidQuestionType(t string) bool {
	for _, known := range AllowedQuestionTypes {
		if t == known {
			return true
		}
	}
	return false
}
