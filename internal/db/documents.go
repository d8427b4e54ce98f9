package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"exam-rag/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string                `bun:"id,pk"`
	FileHash      string                `bun:"file_hash,notnull,unique"`
	FileName      string                `bun:"file_name,notnull"`
	FilePath      string                `bun:"file_path,notnull"`
	Status        models.DocumentStatus `bun:"status,notnull"`
	ErrorMessage  string                `bun:"error_message"`
	CreatedAt     time.Time             `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time             `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// UserDocument links a user to a physical document. Several users may share
// one document row when they upload identical bytes.
type UserDocument struct {
	bun.BaseModel `bun:"table:user_documents,alias:ud"`
	UserID        string    `bun:"user_id,pk"`
	DocumentID    string    `bun:"document_id,pk"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// GetOrCreateDocument resolves an upload to a document row by content hash.
// The caller supplies the candidate id and storage path, which are only used
// when a new row is actually created. The second return value reports whether
// that happened.
func GetOrCreateDocument(ctx context.Context, db *bun.DB, id, fileHash, fileName, filePath string) (*Document, bool, error) {
	existing := new(Document)
	err := db.NewSelect().Model(existing).Where("file_hash = ?", fileHash).Scan(ctx)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	doc := &Document{
		ID:       id,
		FileHash: fileHash,
		FileName: fileName,
		FilePath: filePath,
		Status:   models.DocumentUploaded,
	}
	_, err = db.NewInsert().Model(doc).On("CONFLICT (file_hash) DO NOTHING").Exec(ctx)
	if err != nil {
		return nil, false, err
	}

	// A concurrent upload of the same bytes may have won the insert race.
	stored := new(Document)
	if err := db.NewSelect().Model(stored).Where("file_hash = ?", fileHash).Scan(ctx); err != nil {
		return nil, false, err
	}
	return stored, stored.ID == id, nil
}

func GetDocument(ctx context.Context, db *bun.DB, documentID string) (*Document, error) {
	doc := new(Document)
	err := db.NewSelect().Model(doc).Where("id = ?", documentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocumentStatus advances the document state machine. The transition is
// validated against the current persisted status, and the WHERE clause keeps
// a concurrent writer from sneaking an illegal jump in between.
func UpdateDocumentStatus(ctx context.Context, db *bun.DB, documentID string, next models.DocumentStatus, errorMessage string) error {
	doc, err := GetDocument(ctx, db, documentID)
	if err != nil {
		return err
	}
	if !doc.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, doc.Status, next)
	}
	res, err := db.NewUpdate().Model((*Document)(nil)).
		Set("status = ?", next).
		Set("error_message = ?", errorMessage).
		Set("updated_at = current_timestamp").
		Where("id = ?", documentID).
		Where("status = ?", doc.Status).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: document %s changed concurrently", models.ErrInvalidTransition, documentID)
	}
	return nil
}

// MarkDocumentFailed forces any non-terminal document into the failed state
// with the captured error text. Terminal documents are left untouched.
func MarkDocumentFailed(ctx context.Context, db *bun.DB, documentID, errorMessage string) error {
	_, err := db.NewUpdate().Model((*Document)(nil)).
		Set("status = ?", models.DocumentFailed).
		Set("error_message = ?", errorMessage).
		Set("updated_at = current_timestamp").
		Where("id = ?", documentID).
		Where("status NOT IN (?)", bun.In([]models.DocumentStatus{models.DocumentReady, models.DocumentFailed})).
		Exec(ctx)
	return err
}

// RequeueFailedDocument puts a failed document back to pending for a fresh
// ingestion run. This is the one sanctioned exit from the failed state: a
// re-upload of the same bytes supersedes the earlier attempt. Returns whether
// a row was actually requeued.
func RequeueFailedDocument(ctx context.Context, db *bun.DB, documentID string) (bool, error) {
	res, err := db.NewUpdate().Model((*Document)(nil)).
		Set("status = ?", models.DocumentPending).
		Set("error_message = ?", "").
		Set("updated_at = current_timestamp").
		Where("id = ?", documentID).
		Where("status = ?", models.DocumentFailed).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LinkUserDocument grants the user access to the document. Linking twice is a
// no-op.
func LinkUserDocument(ctx context.Context, db *bun.DB, userID, documentID string) error {
	link := &UserDocument{UserID: userID, DocumentID: documentID}
	_, err := db.NewInsert().Model(link).On("CONFLICT (user_id, document_id) DO NOTHING").Exec(ctx)
	return err
}

// UnlinkUserDocument removes the user's link and reports whether it existed.
func UnlinkUserDocument(ctx context.Context, db *bun.DB, userID, documentID string) (bool, error) {
	res, err := db.NewDelete().Model((*UserDocument)(nil)).
		Where("user_id = ?", userID).
		Where("document_id = ?", documentID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UserOwnsDocument reports whether the library link exists.
func UserOwnsDocument(ctx context.Context, db *bun.DB, userID, documentID string) (bool, error) {
	return db.NewSelect().Model((*UserDocument)(nil)).
		Where("user_id = ?", userID).
		Where("document_id = ?", documentID).
		Exists(ctx)
}

// CountDocumentLinks returns how many users still reference the document.
func CountDocumentLinks(ctx context.Context, db *bun.DB, documentID string) (int, error) {
	return db.NewSelect().Model((*UserDocument)(nil)).
		Where("document_id = ?", documentID).
		Count(ctx)
}

// ListUserDocuments returns every document in the user's library.
func ListUserDocuments(ctx context.Context, db *bun.DB, userID string) ([]Document, error) {
	var docs []Document
	err := db.NewSelect().Model(&docs).
		Join("JOIN user_documents AS ud ON ud.document_id = d.id").
		Where("ud.user_id = ?", userID).
		Order("d.created_at DESC").
		Scan(ctx)
	return docs, err
}

// DeleteDocument removes the document row. Callers are expected to have
// verified that no library links remain.
func DeleteDocument(ctx context.Context, db *bun.DB, documentID string) error {
	_, err := db.NewDelete().Model((*Document)(nil)).Where("id = ?", documentID).Exec(ctx)
	return err
}
