package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-rag/internal/config"
)

func newTestChromem(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(&config.ChromemConfig{InMemory: true}, "test_chunks")
	require.NoError(t, err)
	return s
}

func testRecord(id, docID, ownerID string, vector []float32, index int) Record {
	return Record{
		ID:     id,
		Vector: vector,
		Metadata: Metadata{
			DocumentID: docID,
			FileHash:   "hash-" + docID,
			OwnerID:    ownerID,
			Text:       "chunk " + id,
			PageNumber: 1,
			ChunkIndex: index,
		},
	}
}

func TestChromemUpsertAndQuery(t *testing.T) {
	s := newTestChromem(t)
	ctx := context.Background()

	records := []Record{
		testRecord("h_0", "doc-1", "user-1", []float32{1, 0, 0}, 0),
		testRecord("h_1", "doc-1", "user-1", []float32{0, 1, 0}, 1),
		testRecord("h_2", "doc-2", "user-2", []float32{0, 0, 1}, 2),
	}
	require.NoError(t, s.Upsert(ctx, records))

	results, err := s.Query(ctx, []float32{1, 0, 0}, 2, Filter{OwnerID: "user-1", DocumentID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// nearest first
	assert.Equal(t, "h_0", results[0].ID)
	assert.Equal(t, "doc-1", results[0].Metadata.DocumentID)
	assert.Equal(t, "user-1", results[0].Metadata.OwnerID)
	assert.Equal(t, "chunk h_0", results[0].Metadata.Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestChromemQueryZeroMatchesIsEmptyNotError(t *testing.T) {
	s := newTestChromem(t)
	ctx := context.Background()

	// empty collection
	results, err := s.Query(ctx, []float32{1, 0, 0}, 5, Filter{OwnerID: "user-1"})
	require.NoError(t, err)
	assert.Empty(t, results)

	// populated collection, filter matches nothing
	require.NoError(t, s.Upsert(ctx, []Record{
		testRecord("h_0", "doc-1", "user-1", []float32{1, 0, 0}, 0),
	}))
	results, err = s.Query(ctx, []float32{1, 0, 0}, 5, Filter{OwnerID: "somebody-else"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemQueryIsOwnerScoped(t *testing.T) {
	s := newTestChromem(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Record{
		testRecord("a_0", "doc-1", "alice", []float32{1, 0, 0}, 0),
		testRecord("b_0", "doc-2", "bob", []float32{1, 0, 0}, 0),
	}))

	results, err := s.Query(ctx, []float32{1, 0, 0}, 10, Filter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].Metadata.OwnerID)
}

func TestChromemUpsertIsIdempotentByID(t *testing.T) {
	s := newTestChromem(t)
	ctx := context.Background()

	rec := testRecord("h_0", "doc-1", "user-1", []float32{1, 0, 0}, 0)
	require.NoError(t, s.Upsert(ctx, []Record{rec}))

	rec.Metadata.Text = "updated text"
	require.NoError(t, s.Upsert(ctx, []Record{rec}))

	results, err := s.Query(ctx, []float32{1, 0, 0}, 10, Filter{DocumentID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "updated text", results[0].Metadata.Text)
}

func TestChromemDeleteDocument(t *testing.T) {
	s := newTestChromem(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Record{
		testRecord("a_0", "doc-1", "user-1", []float32{1, 0, 0}, 0),
		testRecord("a_1", "doc-1", "user-1", []float32{0, 1, 0}, 1),
		testRecord("b_0", "doc-2", "user-1", []float32{0, 0, 1}, 0),
	}))

	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))

	results, err := s.Query(ctx, []float32{1, 0, 0}, 10, Filter{OwnerID: "user-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-2", results[0].Metadata.DocumentID)
}

func TestMetadataMapRoundTrip(t *testing.T) {
	md := Metadata{
		DocumentID: "doc-1",
		FileHash:   "abc",
		OwnerID:    "user-1",
		Text:       "some text",
		PageNumber: 7,
		ChunkIndex: 12,
	}
	assert.Equal(t, md, metadataFromMap(metadataToMap(md)))
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "abc123_0", RecordID("abc123", 0))
	assert.Equal(t, "abc123_41", RecordID("abc123", 41))
}
