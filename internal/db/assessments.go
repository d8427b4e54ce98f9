package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"exam-rag/internal/helper"
	"exam-rag/internal/models"
)

type Assessment struct {
	bun.BaseModel `bun:"table:assessments,alias:a"`
	ID            string                  `bun:"id,pk"`
	UserID        string                  `bun:"user_id,notnull"`
	DocumentID    string                  `bun:"document_id,notnull"`
	Query         string                  `bun:"query,notnull"`
	NumQuestions  int                     `bun:"num_questions,notnull"`
	Difficulty    string                  `bun:"difficulty,notnull"`
	QuestionTypes []string                `bun:"question_types,array"`
	Title         string                  `bun:"title"`
	Status        models.AssessmentStatus `bun:"status,notnull"`
	ErrorMessage  string                  `bun:"error_message"`
	CreatedAt     time.Time               `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time               `bun:"updated_at,nullzero,notnull,default:current_timestamp"`

	Questions []*Question `bun:"rel:has-many,join:id=assessment_id"`
}

type Question struct {
	bun.BaseModel `bun:"table:questions,alias:q"`
	ID            string `bun:"id,pk"`
	AssessmentID  string `bun:"assessment_id,notnull"`
	Position      int    `bun:"position,notnull"`
	Type          string `bun:"type,notnull"`
	Text          string `bun:"text,notnull"`
	SourcePage    int    `bun:"source_page,notnull"`
	SourceText    string `bun:"source_text,notnull"`

	Options []*QuestionOption `bun:"rel:has-many,join:id=question_id"`
}

type QuestionOption struct {
	bun.BaseModel `bun:"table:question_options,alias:qo"`
	ID            string `bun:"id,pk"`
	QuestionID    string `bun:"question_id,notnull"`
	Position      int    `bun:"position,notnull"`
	Text          string `bun:"text,notnull"`
	IsCorrect     bool   `bun:"is_correct,notnull"`
}

// CreateAssessment inserts the pending row and returns it with its id set.
func CreateAssessment(ctx context.Context, db *bun.DB, a *Assessment) (*Assessment, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	a.ID = id
	a.Status = models.AssessmentPending
	if a.Title == "" {
		a.Title = "Assessment: " + a.Query
	}
	if _, err := db.NewInsert().Model(a).Exec(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func GetAssessment(ctx context.Context, db *bun.DB, assessmentID string) (*Assessment, error) {
	a := new(Assessment)
	err := db.NewSelect().Model(a).Where("a.id = ?", assessmentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAssessmentWithQuestions loads the assessment plus its questions and
// options, ordered by position, for the polling client.
func GetAssessmentWithQuestions(ctx context.Context, db *bun.DB, assessmentID string) (*Assessment, error) {
	a := new(Assessment)
	err := db.NewSelect().Model(a).
		Relation("Questions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Relation("Questions.Options", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Where("a.id = ?", assessmentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListUserAssessments returns the user's assessments, newest first.
func ListUserAssessments(ctx context.Context, db *bun.DB, userID string) ([]Assessment, error) {
	var out []Assessment
	err := db.NewSelect().Model(&out).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return out, err
}

// UpdateAssessmentStatus advances the assessment state machine, rejecting
// illegal jumps against the currently persisted status.
func UpdateAssessmentStatus(ctx context.Context, db *bun.DB, assessmentID string, next models.AssessmentStatus, errorMessage string) error {
	a, err := GetAssessment(ctx, db, assessmentID)
	if err != nil {
		return err
	}
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, a.Status, next)
	}
	res, err := db.NewUpdate().Model((*Assessment)(nil)).
		Set("status = ?", next).
		Set("error_message = ?", errorMessage).
		Set("updated_at = current_timestamp").
		Where("id = ?", assessmentID).
		Where("status = ?", a.Status).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: assessment %s changed concurrently", models.ErrInvalidTransition, assessmentID)
	}
	return nil
}

// MarkAssessmentFailed forces any non-terminal assessment into failed with
// the captured error text.
func MarkAssessmentFailed(ctx context.Context, db *bun.DB, assessmentID, errorMessage string) error {
	_, err := db.NewUpdate().Model((*Assessment)(nil)).
		Set("status = ?", models.AssessmentFailed).
		Set("error_message = ?", errorMessage).
		Set("updated_at = current_timestamp").
		Where("id = ?", assessmentID).
		Where("status NOT IN (?)", bun.In([]models.AssessmentStatus{models.AssessmentCompleted, models.AssessmentFailed})).
		Exec(ctx)
	return err
}

// InsertQuestion stores a question and its options in one transaction, so a
// partially written question can never be observed.
func InsertQuestion(ctx context.Context, db *bun.DB, q *Question) error {
	id, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	q.ID = id
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(q).Exec(ctx); err != nil {
			return err
		}
		for _, opt := range q.Options {
			optID, err := helper.GenerateUUID()
			if err != nil {
				return err
			}
			opt.ID = optID
			opt.QuestionID = q.ID
			if _, err := tx.NewInsert().Model(opt).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountAssessmentQuestions returns how many questions are persisted.
func CountAssessmentQuestions(ctx context.Context, db *bun.DB, assessmentID string) (int, error) {
	return db.NewSelect().Model((*Question)(nil)).
		Where("assessment_id = ?", assessmentID).
		Count(ctx)
}
