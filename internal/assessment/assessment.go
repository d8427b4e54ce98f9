// Package assessment turns a user query over an indexed document into a
// persisted exam: retrieve owner-scoped context, prompt the generation model,
// validate its output, and store the questions.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"exam-rag/internal/db"
	"exam-rag/internal/models"
	"exam-rag/internal/vectordb"
)

// Repository is the slice of the relational store the generator needs.
type Repository interface {
	UserOwnsDocument(ctx context.Context, userID, documentID string) (bool, error)
	GetDocument(ctx context.Context, documentID string) (*db.Document, error)
	CreateAssessment(ctx context.Context, a *db.Assessment) (*db.Assessment, error)
	GetAssessment(ctx context.Context, assessmentID string) (*db.Assessment, error)
	GetAssessmentWithQuestions(ctx context.Context, assessmentID string) (*db.Assessment, error)
	UpdateAssessmentStatus(ctx context.Context, assessmentID string, next models.AssessmentStatus, errorMessage string) error
	MarkAssessmentFailed(ctx context.Context, assessmentID, errorMessage string) error
	InsertQuestion(ctx context.Context, q *db.Question) error
	CountAssessmentQuestions(ctx context.Context, assessmentID string) (int, error)
}

// QueryEmbedder embeds the retrieval query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces the model's raw JSON answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	repo      Repository
	embedder  QueryEmbedder
	vectors   vectordb.Store
	generator Generator
	topK      int
}

func NewService(repo Repository, embedder QueryEmbedder, vectors vectordb.Store, generator Generator, topK int) *Service {
	if topK <= 0 {
		topK = 5
	}
	return &Service{
		repo:      repo,
		embedder:  embedder,
		vectors:   vectors,
		generator: generator,
		topK:      topK,
	}
}

// Request describes one assessment to generate.
type Request struct {
	UserID        string
	DocumentID    string
	Query         string
	NumQuestions  int
	Difficulty    string
	QuestionTypes []string
}

func (r *Request) validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: empty query", models.ErrMalformedInput)
	}
	if r.NumQuestions < 1 {
		return fmt.Errorf("%w: num_questions must be positive", models.ErrMalformedInput)
	}
	for _, t := range r.QuestionTypes {
		if !models.ValidQuestionType(t) {
			return fmt.Errorf("%w: unknown question type %q", models.ErrMalformedInput, t)
		}
	}
	return nil
}

// Create validates the request, checks the caller actually has the document
// in their library and that it is ready, and persists the pending assessment.
func (s *Service) Create(ctx context.Context, req *Request) (*db.Assessment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	owns, err := s.repo.UserOwnsDocument(ctx, req.UserID, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, fmt.Errorf("%w: document %s for user %s", models.ErrUnauthorized, req.DocumentID, req.UserID)
	}

	doc, err := s.repo.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentReady {
		return nil, fmt.Errorf("document %s is %s, not ready", doc.ID, doc.Status)
	}

	types := req.QuestionTypes
	if len(types) == 0 {
		types = append([]string(nil), models.AllowedQuestionTypes...)
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}

	return s.repo.CreateAssessment(ctx, &db.Assessment{
		UserID:        req.UserID,
		DocumentID:    req.DocumentID,
		Query:         req.Query,
		NumQuestions:  req.NumQuestions,
		Difficulty:    difficulty,
		QuestionTypes: types,
	})
}

// Generate runs the retrieval and generation pipeline for a pending
// assessment. Any error is persisted as a failed status here, in one place,
// so a crashed run is always visible to the polling client. A transition
// conflict is the single exception: it means another run already owns the
// assessment, and its outcome must not be overwritten from outside.
func (s *Service) Generate(ctx context.Context, assessmentID string) error {
	err := s.run(ctx, assessmentID)
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrInvalidTransition) {
		return err
	}
	log.Error().Err(err).Str("assessment_id", assessmentID).Msg("Assessment generation failed")
	if markErr := s.repo.MarkAssessmentFailed(ctx, assessmentID, err.Error()); markErr != nil {
		log.Error().Err(markErr).Str("assessment_id", assessmentID).Msg("Error marking assessment failed")
	}
	return err
}

// GenerateAsync runs Generate in the background; the caller polls by id.
func (s *Service) GenerateAsync(assessmentID string) {
	go func() {
		if err := s.Generate(context.Background(), assessmentID); err != nil {
			log.Warn().Err(err).Str("assessment_id", assessmentID).Msg("Background generation ended with error")
			return
		}
		log.Info().Str("assessment_id", assessmentID).Msg("Background generation completed")
	}()
}

func (s *Service) run(ctx context.Context, assessmentID string) error {
	a, err := s.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateAssessmentStatus(ctx, assessmentID, models.AssessmentProcessing, ""); err != nil {
		return err
	}

	results, err := s.retrieve(ctx, a)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: no indexed content matched %q", models.ErrNoContext, a.Query)
	}

	prompt := fmt.Sprintf(models.ExamPromptTemplate,
		a.NumQuestions,
		formatContext(results),
		a.Difficulty,
		strings.Join(a.QuestionTypes, ", "),
	)

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generation failed: %v", err)
	}

	generated, err := ParseGenerated(raw, a.NumQuestions, a.QuestionTypes)
	if err != nil {
		return err
	}

	if err := s.persistQuestions(ctx, a, generated); err != nil {
		return err
	}

	persisted, err := s.repo.CountAssessmentQuestions(ctx, assessmentID)
	if err != nil {
		return err
	}
	if persisted != a.NumQuestions {
		return fmt.Errorf("persisted %d questions, want %d", persisted, a.NumQuestions)
	}
	return s.repo.UpdateAssessmentStatus(ctx, assessmentID, models.AssessmentCompleted, "")
}

// retrieve embeds the query and fetches the top matches, scoped to the
// assessment's owner and document. The scoping is non-negotiable: a query can
// never surface another user's chunks.
func (s *Service) retrieve(ctx context.Context, a *db.Assessment) ([]vectordb.Result, error) {
	vector, err := s.embedder.EmbedQuery(ctx, a.Query)
	if err != nil {
		return nil, err
	}
	return s.vectors.Query(ctx, vector, s.topK, vectordb.Filter{
		OwnerID:    a.UserID,
		DocumentID: a.DocumentID,
	})
}

// formatContext renders the retrieved chunks as numbered SOURCE blocks in
// descending relevance order.
func formatContext(results []vectordb.Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		header := fmt.Sprintf(models.SourceHeaderFormat, i+1)
		blocks[i] = fmt.Sprintf("%s (page %d)\n%s", header, r.Metadata.PageNumber, r.Metadata.Text)
	}
	return strings.Join(blocks, models.SourceSeparator)
}

func (s *Service) persistQuestions(ctx context.Context, a *db.Assessment, generated *GeneratedAssessment) error {
	for i, gq := range generated.Questions {
		q := &db.Question{
			AssessmentID: a.ID,
			Position:     i,
			Type:         gq.Type,
			Text:         gq.Question,
			SourcePage:   gq.PageNumber,
			SourceText:   gq.SourceText,
		}
		for j, opt := range gq.Options {
			q.Options = append(q.Options, &db.QuestionOption{
				Position:  j,
				Text:      opt,
				IsCorrect: j == gq.CorrectAnswer,
			})
		}
		// Short-answer questions persist the expected answer as their single
		// correct option so grading reads uniformly across types.
		if gq.Type == models.QuestionShortAnswer {
			q.Options = append(q.Options, &db.QuestionOption{
				Position:  0,
				Text:      gq.Answer,
				IsCorrect: true,
			})
		}
		if err := s.repo.InsertQuestion(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the assessment with questions, enforcing ownership.
func (s *Service) Get(ctx context.Context, userID, assessmentID string) (*db.Assessment, error) {
	a, err := s.repo.GetAssessmentWithQuestions(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, fmt.Errorf("%w: assessment %s for user %s", models.ErrUnauthorized, assessmentID, userID)
	}
	return a, nil
}
