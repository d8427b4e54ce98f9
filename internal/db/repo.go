package db

import (
	"context"

	"github.com/uptrace/bun"

	"exam-rag/internal/models"
)

// Repo bundles the package-level queries behind one value so orchestrators
// can depend on a small interface and tests can fake it.
type Repo struct {
	DB *bun.DB
}

func NewRepo(db *bun.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) GetOrCreateDocument(ctx context.Context, id, fileHash, fileName, filePath string) (*Document, bool, error) {
	return GetOrCreateDocument(ctx, r.DB, id, fileHash, fileName, filePath)
}

func (r *Repo) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	return GetDocument(ctx, r.DB, documentID)
}

func (r *Repo) UpdateDocumentStatus(ctx context.Context, documentID string, next models.DocumentStatus, errorMessage string) error {
	return UpdateDocumentStatus(ctx, r.DB, documentID, next, errorMessage)
}

func (r *Repo) MarkDocumentFailed(ctx context.Context, documentID, errorMessage string) error {
	return MarkDocumentFailed(ctx, r.DB, documentID, errorMessage)
}

func (r *Repo) RequeueFailedDocument(ctx context.Context, documentID string) (bool, error) {
	return RequeueFailedDocument(ctx, r.DB, documentID)
}

func (r *Repo) LinkUserDocument(ctx context.Context, userID, documentID string) error {
	return LinkUserDocument(ctx, r.DB, userID, documentID)
}

func (r *Repo) UnlinkUserDocument(ctx context.Context, userID, documentID string) (bool, error) {
	return UnlinkUserDocument(ctx, r.DB, userID, documentID)
}

func (r *Repo) UserOwnsDocument(ctx context.Context, userID, documentID string) (bool, error) {
	return UserOwnsDocument(ctx, r.DB, userID, documentID)
}

func (r *Repo) CountDocumentLinks(ctx context.Context, documentID string) (int, error) {
	return CountDocumentLinks(ctx, r.DB, documentID)
}

func (r *Repo) ListUserDocuments(ctx context.Context, userID string) ([]Document, error) {
	return ListUserDocuments(ctx, r.DB, userID)
}

func (r *Repo) DeleteDocument(ctx context.Context, documentID string) error {
	return DeleteDocument(ctx, r.DB, documentID)
}

func (r *Repo) CreateAssessment(ctx context.Context, a *Assessment) (*Assessment, error) {
	return CreateAssessment(ctx, r.DB, a)
}

func (r *Repo) GetAssessment(ctx context.Context, assessmentID string) (*Assessment, error) {
	return GetAssessment(ctx, r.DB, assessmentID)
}

func (r *Repo) GetAssessmentWithQuestions(ctx context.Context, assessmentID string) (*Assessment, error) {
	return GetAssessmentWithQuestions(ctx, r.DB, assessmentID)
}

func (r *Repo) ListUserAssessments(ctx context.Context, userID string) ([]Assessment, error) {
	return ListUserAssessments(ctx, r.DB, userID)
}

func (r *Repo) UpdateAssessmentStatus(ctx context.Context, assessmentID string, next models.AssessmentStatus, errorMessage string) error {
	return UpdateAssessmentStatus(ctx, r.DB, assessmentID, next, errorMessage)
}

func (r *Repo) MarkAssessmentFailed(ctx context.Context, assessmentID, errorMessage string) error {
	return MarkAssessmentFailed(ctx, r.DB, assessmentID, errorMessage)
}

func (r *Repo) InsertQuestion(ctx context.Context, q *Question) error {
	return InsertQuestion(ctx, r.DB, q)
}

func (r *Repo) CountAssessmentQuestions(ctx context.Context, assessmentID string) (int, error) {
	return CountAssessmentQuestions(ctx, r.DB, assessmentID)
}
