package vectordb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"exam-rag/internal/config"
	"exam-rag/internal/models"
)

// ChromemStore is the embedded backend. It keeps the whole collection in
// process (optionally persisted to disk), which makes it the default for
// local deployments and tests.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func NewChromemStore(cfg *config.ChromemConfig, collectionName string) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}
	return &ChromemStore{db: db, collection: collection}, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   rec.Metadata.Text,
			Metadata:  metadataToMap(rec.Metadata),
			Embedding: rec.Vector,
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// Query ranks the whole collection and filters here rather than pushing the
// where clause down: chromem rejects result limits larger than the matching
// set, and the store is exhaustive either way.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, limit int, filter Filter) ([]Result, error) {
	count := s.collection.Count()
	if count == 0 || limit <= 0 {
		return nil, nil
	}

	hits, err := s.collection.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}

	var results []Result
	for _, hit := range hits {
		md := metadataFromMap(hit.Metadata)
		if filter.OwnerID != "" && md.OwnerID != filter.OwnerID {
			continue
		}
		if filter.DocumentID != "" && md.DocumentID != filter.DocumentID {
			continue
		}
		results = append(results, Result{ID: hit.ID, Score: hit.Similarity, Metadata: md})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (s *ChromemStore) DeleteDocument(ctx context.Context, documentID string) error {
	err := s.collection.Delete(ctx, map[string]string{metaDocumentID: documentID}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

func metadataToMap(md Metadata) map[string]string {
	return map[string]string{
		metaDocumentID: md.DocumentID,
		metaFileHash:   md.FileHash,
		metaOwnerID:    md.OwnerID,
		metaText:       md.Text,
		metaPageNumber: strconv.Itoa(md.PageNumber),
		metaChunkIndex: strconv.Itoa(md.ChunkIndex),
	}
}

func metadataFromMap(m map[string]string) Metadata {
	page, _ := strconv.Atoi(m[metaPageNumber])
	index, _ := strconv.Atoi(m[metaChunkIndex])
	return Metadata{
		DocumentID: m[metaDocumentID],
		FileHash:   m[metaFileHash],
		OwnerID:    m[metaOwnerID],
		Text:       m[metaText],
		PageNumber: page,
		ChunkIndex: index,
	}
}
