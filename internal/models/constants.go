package models

const (
	// SourceSeparator joins formatted context blocks passed to the exam writer.
	SourceSeparator = "\n\n"

	// SourceHeaderFormat labels each retrieved chunk so the model can cite it.
	SourceHeaderFormat = "--- SOURCE %d ---"
)

var (
	// ExamPromptTemplate instructs the generation model to produce a question
	// set grounded only in the retrieved context. Placeholders: question
	// count, context, difficulty, comma-joined question types.
	ExamPromptTemplate = `You are an exam writer. Based ONLY on the provided context, generate an assessment.

It must have exactly %d questions.

CONTEXT:
%s

DIFFICULTY: %s

QUESTION TYPES:
Questions must only be of the types in this list: %s

OUTPUT INSTRUCTIONS:
Return ONLY a JSON object, no prose, matching this schema exactly:
{
  "title": "short assessment title",
  "questions": [
    {
      "type": "multiple-choice" | "true-false" | "short-answer",
      "question": "the question text",
      "options": ["option text", ...],
      "correct_answer": 0,
      "answer": "expected answer for short-answer questions, otherwise empty",
      "source_text": "verbatim snippet of the context the question is based on",
      "page_number": 1
    }
  ]
}

"correct_answer" is the zero-based index of the correct option. true-false
questions use exactly the options ["True", "False"]. short-answer questions
use an empty options list and put the expected answer in "answer". Every
question must set source_text and page_number from the SOURCE block it was
derived from.`
)
