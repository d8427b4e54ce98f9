// Package ingest drives a document from upload to a queryable, indexed
// artifact: hash-deduplicated creation, object storage, chunking, batched
// embedding and vector upsert, with every status transition persisted.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"exam-rag/internal/chunker"
	"exam-rag/internal/db"
	"exam-rag/internal/helper"
	"exam-rag/internal/models"
	"exam-rag/internal/vectordb"
)

// Repository is the slice of the relational store the pipeline needs.
type Repository interface {
	GetOrCreateDocument(ctx context.Context, id, fileHash, fileName, filePath string) (*db.Document, bool, error)
	GetDocument(ctx context.Context, documentID string) (*db.Document, error)
	UpdateDocumentStatus(ctx context.Context, documentID string, next models.DocumentStatus, errorMessage string) error
	MarkDocumentFailed(ctx context.Context, documentID, errorMessage string) error
	RequeueFailedDocument(ctx context.Context, documentID string) (bool, error)
	LinkUserDocument(ctx context.Context, userID, documentID string) error
	UnlinkUserDocument(ctx context.Context, userID, documentID string) (bool, error)
	CountDocumentLinks(ctx context.Context, documentID string) (int, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// ObjectStore holds the raw uploaded bytes by store-relative path.
type ObjectStore interface {
	ObjectPath(ownerID, documentID string) string
	Save(path string, data []byte) error
	Load(path string) ([]byte, error)
	Delete(path string) error
}

// Embedder converts chunk text into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config carries the pipeline tunables.
type Config struct {
	BatchSize int
	Chunk     chunker.Options
}

type Service struct {
	repo     Repository
	store    ObjectStore
	embedder Embedder
	vectors  vectordb.Store
	cfg      Config
	claims   *claimTable
}

func NewService(repo Repository, store ObjectStore, embedder Embedder, vectors vectordb.Store, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	return &Service{
		repo:     repo,
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		cfg:      cfg,
		claims:   newClaimTable(),
	}
}

// UploadResult tells the caller what the upload resolved to.
type UploadResult struct {
	Document *db.Document
	// NeedsProcessing is set when the document is new or a failed earlier run
	// was requeued; existing ready documents are served as-is.
	NeedsProcessing bool
}

// Upload stores the raw bytes, resolves the upload to a document row by
// content hash, links the owner, and advances a fresh document to pending.
// Uploading identical bytes twice, by the same or a different user, resolves
// to the same document row.
func (s *Service) Upload(ctx context.Context, ownerID, fileName string, data []byte) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", models.ErrMalformedInput)
	}

	fileHash := helper.HashBytes(data)
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}

	doc, created, err := s.repo.GetOrCreateDocument(ctx, id, fileHash, fileName, s.store.ObjectPath(ownerID, id))
	if err != nil {
		return nil, err
	}

	if err := s.repo.LinkUserDocument(ctx, ownerID, doc.ID); err != nil {
		return nil, err
	}

	if created {
		if err := s.store.Save(doc.FilePath, data); err != nil {
			failErr := fmt.Errorf("failed to store upload: %v", err)
			if markErr := s.repo.MarkDocumentFailed(ctx, doc.ID, failErr.Error()); markErr != nil {
				log.Error().Err(markErr).Str("document_id", doc.ID).Msg("Error marking document failed")
			}
			return nil, failErr
		}
		if err := s.repo.UpdateDocumentStatus(ctx, doc.ID, models.DocumentPending, ""); err != nil {
			return nil, err
		}
		doc.Status = models.DocumentPending
		return &UploadResult{Document: doc, NeedsProcessing: true}, nil
	}

	// Identical bytes already known. A failed earlier run gets a fresh pass;
	// anything else is served as-is.
	if doc.Status == models.DocumentFailed {
		requeued, err := s.repo.RequeueFailedDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if requeued {
			doc.Status = models.DocumentPending
			return &UploadResult{Document: doc, NeedsProcessing: true}, nil
		}
	}
	return &UploadResult{Document: doc, NeedsProcessing: false}, nil
}

// Process runs the ingestion pipeline for one document. Any pipeline error is
// persisted as a failed status before returning, in this one place, so no
// caller can strand a document in processing. A claim conflict is the single
// exception: the document belongs to the pipeline that holds the claim.
func (s *Service) Process(ctx context.Context, documentID, ownerID string) error {
	err := s.run(ctx, documentID, ownerID)
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrAlreadyProcessing) {
		return err
	}
	log.Error().Err(err).Str("document_id", documentID).Msg("Ingestion failed")
	if markErr := s.repo.MarkDocumentFailed(ctx, documentID, err.Error()); markErr != nil {
		log.Error().Err(markErr).Str("document_id", documentID).Msg("Error marking document failed")
	}
	return err
}

// ProcessAsync decouples the pipeline from the originating request. The
// caller already has the document id to poll on.
func (s *Service) ProcessAsync(documentID, ownerID string) {
	go func() {
		if err := s.Process(context.Background(), documentID, ownerID); err != nil {
			log.Warn().Err(err).Str("document_id", documentID).Msg("Background ingestion ended with error")
			return
		}
		log.Info().Str("document_id", documentID).Msg("Background ingestion completed")
	}()
}

func (s *Service) run(ctx context.Context, documentID, ownerID string) error {
	if !s.claims.acquire(documentID) {
		return fmt.Errorf("%w: %s", models.ErrAlreadyProcessing, documentID)
	}
	defer s.claims.release(documentID)

	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status == models.DocumentReady {
		return nil
	}

	if err := s.repo.UpdateDocumentStatus(ctx, documentID, models.DocumentProcessing, ""); err != nil {
		return err
	}

	data, err := s.store.Load(doc.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read stored upload: %v", err)
	}

	chunks, err := chunker.Chunk(data, doc.FileHash, doc.FileName, s.cfg.Chunk)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: document produced no text", models.ErrMalformedInput)
	}

	if err := s.repo.UpdateDocumentStatus(ctx, documentID, models.DocumentIndexing, ""); err != nil {
		return err
	}

	if err := s.indexChunks(ctx, doc, ownerID, chunks); err != nil {
		return err
	}

	return s.repo.UpdateDocumentStatus(ctx, documentID, models.DocumentReady, "")
}

// indexChunks embeds and upserts the chunks in document order, one bounded
// sub-batch at a time to respect remote payload limits.
func (s *Service) indexChunks(ctx context.Context, doc *db.Document, ownerID string, chunks []models.Chunk) error {
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}

		records := make([]vectordb.Record, len(batch))
		for i, c := range batch {
			records[i] = vectordb.Record{
				ID:     vectordb.RecordID(c.FileHash, c.Index),
				Vector: vectors[i],
				Metadata: vectordb.Metadata{
					DocumentID: doc.ID,
					FileHash:   c.FileHash,
					OwnerID:    ownerID,
					Text:       c.Text,
					PageNumber: c.PageNumber,
					ChunkIndex: c.Index,
				},
			}
		}
		if err := s.vectors.Upsert(ctx, records); err != nil {
			return err
		}
		log.Debug().Str("document_id", doc.ID).Int("from", start).Int("to", end).Msg("Indexed chunk batch")
	}
	return nil
}

// Delete removes the caller's link to the document. When the last link goes,
// vectors and the stored object are cleaned up best-effort and the row is
// removed; cleanup failures are logged, never propagated, so the caller's
// delete cannot end up half-failed.
func (s *Service) Delete(ctx context.Context, ownerID, documentID string) (fullyDeleted bool, err error) {
	removed, err := s.repo.UnlinkUserDocument(ctx, ownerID, documentID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, fmt.Errorf("%w: document %s for user %s", models.ErrNotFound, documentID, ownerID)
	}

	remaining, err := s.repo.CountDocumentLinks(ctx, documentID)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}

	if err := s.vectors.DeleteDocument(ctx, documentID); err != nil {
		log.Warn().Err(err).Str("document_id", documentID).Msg("Vector cleanup failed")
	}

	doc, err := s.repo.GetDocument(ctx, documentID)
	if err == nil {
		if err := s.store.Delete(doc.FilePath); err != nil {
			log.Warn().Err(err).Str("document_id", documentID).Msg("Storage cleanup failed")
		}
	}

	if err := s.repo.DeleteDocument(ctx, documentID); err != nil {
		log.Warn().Err(err).Str("document_id", documentID).Msg("Document row cleanup failed")
	}
	return true, nil
}

// claimTable enforces at most one active pipeline per document id within
// this process.
type claimTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newClaimTable() *claimTable {
	return &claimTable{held: make(map[string]struct{})}
}

func (t *claimTable) acquire(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, taken := t.held[id]; taken {
		return false
	}
	t.held[id] = struct{}{}
	return true
}

func (t *claimTable) release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, id)
}
