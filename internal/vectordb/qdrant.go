package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"exam-rag/internal/config"
	"exam-rag/internal/models"
)

// QdrantStore is a minimal REST client to Qdrant. It assumes cosine distance
// and creates the collection if missing.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	pageSize   int
	client     *http.Client
}

func NewQdrantStore(cfg *config.QdrantConfig, collection string, dimension, pageSize int) *QdrantStore {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &QdrantStore{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		dimension:  dimension,
		pageSize:   pageSize,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection if it does not exist yet.
func (s *QdrantStore) Init(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	return s.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil)
}

func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, rec := range records {
		points[i] = map[string]any{
			"id":     pointID(rec.ID),
			"vector": rec.Vector,
			"payload": map[string]any{
				metaDocumentID: rec.Metadata.DocumentID,
				metaFileHash:   rec.Metadata.FileHash,
				metaOwnerID:    rec.Metadata.OwnerID,
				metaText:       rec.Metadata.Text,
				metaPageNumber: rec.Metadata.PageNumber,
				metaChunkIndex: rec.Metadata.ChunkIndex,
			},
		}
	}
	body := map[string]any{"points": points}
	err := s.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, vector []float32, limit int, filter Filter) ([]Result, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"filter":       qdrantFilter(filter),
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := s.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}

	results := make([]Result, 0, len(resp.Result))
	for _, hit := range resp.Result {
		md := metadataFromPayload(hit.Payload)
		id := fmt.Sprintf("%v", hit.ID)
		if md.FileHash != "" {
			id = RecordID(md.FileHash, md.ChunkIndex)
		}
		results = append(results, Result{
			ID:       id,
			Score:    hit.Score,
			Metadata: md,
		})
	}
	return results, nil
}

// pointID derives a deterministic UUID from the canonical record id. Qdrant
// only accepts unsigned integers or UUIDs as point ids, so the canonical id
// lives in the payload (file_hash + chunk_index) and the point id is a uuid5
// of it; re-upserting a chunk still lands on the same point.
func pointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

// DeleteDocument removes every record whose payload document id matches.
// Qdrant pages scroll results, so it keeps scrolling and deleting in bounded
// batches until a page comes back short; that terminates for any chunk count.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	filter := qdrantFilter(Filter{DocumentID: documentID})
	for {
		ids, err := s.scrollIDs(ctx, filter)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := s.deleteIDs(ctx, ids); err != nil {
			return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
		}
		log.Debug().Str("document_id", documentID).Int("count", len(ids)).Msg("Deleted vector page")
		if len(ids) < s.pageSize {
			return nil
		}
	}
}

func (s *QdrantStore) scrollIDs(ctx context.Context, filter map[string]any) ([]any, error) {
	req := map[string]any{
		"filter":       filter,
		"limit":        s.pageSize,
		"with_payload": false,
		"with_vector":  false,
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID any `json:"id"`
			} `json:"points"`
		} `json:"result"`
	}
	err := s.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/scroll", s.url, s.collection), req, &resp)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *QdrantStore) deleteIDs(ctx context.Context, ids []any) error {
	body := map[string]any{"points": ids}
	return s.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), body, nil)
}

func qdrantFilter(filter Filter) map[string]any {
	var must []map[string]any
	if filter.OwnerID != "" {
		must = append(must, map[string]any{"key": metaOwnerID, "match": map[string]any{"value": filter.OwnerID}})
	}
	if filter.DocumentID != "" {
		must = append(must, map[string]any{"key": metaDocumentID, "match": map[string]any{"value": filter.DocumentID}})
	}
	return map[string]any{"must": must}
}

func metadataFromPayload(payload map[string]any) Metadata {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}
	num := func(key string) int {
		v, _ := payload[key].(float64)
		return int(v)
	}
	return Metadata{
		DocumentID: str(metaDocumentID),
		FileHash:   str(metaFileHash),
		OwnerID:    str(metaOwnerID),
		Text:       str(metaText),
		PageNumber: num(metaPageNumber),
		ChunkIndex: num(metaChunkIndex),
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: %d, %s", resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
