// Package vectordb adapts similarity-search backends to one narrow contract:
// upsert records, query by vector with metadata filtering, delete everything
// belonging to a document.
package vectordb

import (
	"context"
	"fmt"

	"exam-rag/internal/config"
)

// Metadata keys shared by every backend.
const (
	metaDocumentID = "document_id"
	metaFileHash   = "file_hash"
	metaOwnerID    = "owner_id"
	metaText       = "text"
	metaPageNumber = "page_number"
	metaChunkIndex = "chunk_index"
)

// Metadata carries enough fields to reconstruct a citation and to scope any
// query to one owner and one document.
type Metadata struct {
	DocumentID string
	FileHash   string
	OwnerID    string
	Text       string
	PageNumber int
	ChunkIndex int
}

// Record is one upsertable (id, vector, metadata) triple.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Result is one ranked query hit, nearest first.
type Result struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// Filter is a conjunction of equality predicates. Both fields are set on
// every retrieval query; the index itself enforces no tenant isolation.
type Filter struct {
	OwnerID    string
	DocumentID string
}

// Store is the similarity index contract. Upsert is idempotent by record id;
// a query matching zero records returns an empty slice, not an error;
// DeleteDocument removes every record whose document id matches.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, limit int, filter Filter) ([]Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// RecordID builds the canonical record id for a chunk.
func RecordID(fileHash string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", fileHash, chunkIndex)
}

// NewStore builds the configured backend, ready to accept writes.
func NewStore(ctx context.Context, cfg *config.VectorConfig) (Store, error) {
	switch cfg.Backend {
	case "chromem":
		chromemCfg := cfg.Chromem
		if chromemCfg == nil {
			chromemCfg = &config.ChromemConfig{Path: "./chromemdb"}
		}
		return NewChromemStore(chromemCfg, cfg.Collection)
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant backend selected but not configured")
		}
		store := NewQdrantStore(cfg.Qdrant, cfg.Collection, cfg.Dimension, cfg.DeletePageSize)
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to create collection: %v", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", cfg.Backend)
	}
}
