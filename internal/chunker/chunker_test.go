package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-rag/internal/models"
)

func TestChunkTxtDocument(t *testing.T) {
	text := "Photosynthesis converts light into chemical energy.\nChlorophyll absorbs mostly red and blue light.\n"
	chunks, err := Chunk([]byte(text), "hash123", "notes.txt", Options{})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, "hash123", chunks[0].FileHash)
	assert.Contains(t, chunks[0].Text, "Photosynthesis")
	assert.Contains(t, chunks[0].Text, "Chlorophyll")
}

func TestChunkUnsupportedFormat(t *testing.T) {
	_, err := Chunk([]byte("x"), "h", "data.csv", Options{})
	assert.ErrorIs(t, err, models.ErrMalformedInput)
}

func TestChunkCorruptPDF(t *testing.T) {
	chunks, err := Chunk([]byte("%PDF-1.4 this is not a real pdf"), "h", "broken.pdf", Options{})
	assert.ErrorIs(t, err, models.ErrMalformedInput)
	assert.Nil(t, chunks)
}

func TestChunkPagesDropsRepeatedHeaders(t *testing.T) {
	pages := []page{
		{number: 1, text: "ACME Corp Confidential\nThe mitochondria is the powerhouse of the cell.\n"},
		{number: 2, text: "ACME Corp Confidential\nGlycolysis happens in the cytoplasm.\n"},
		{number: 3, text: "acme corp   confidential\nThe Krebs cycle follows glycolysis.\n"},
	}
	chunks := chunkPages(pages, "h", Options{})
	require.Len(t, chunks, 3)

	assert.Contains(t, chunks[0].Text, "ACME Corp Confidential")
	for _, c := range chunks[1:] {
		assert.NotContains(t, strings.ToLower(c.Text), "confidential")
	}
}

func TestChunkPagesIndexIsGlobalAndOrdered(t *testing.T) {
	pages := []page{
		{number: 1, text: "alpha one\n"},
		{number: 2, text: "beta two\n"},
		{number: 4, text: "gamma three\n"},
	}
	chunks := chunkPages(pages, "h", Options{})
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[1].PageNumber)
	assert.Equal(t, 4, chunks[2].PageNumber)
}

func TestChunkPagesSkipsEmptyPages(t *testing.T) {
	pages := []page{
		{number: 1, text: "   \n\n  \n"},
		{number: 2, text: "real content here\n"},
	}
	chunks := chunkPages(pages, "h", Options{})
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].PageNumber)
}

func TestChunkPagesNoStateBetweenCalls(t *testing.T) {
	pages := []page{{number: 1, text: "the same line\n"}}
	first := chunkPages(pages, "h", Options{})
	second := chunkPages(pages, "h", Options{})
	require.Len(t, first, 1)
	require.Len(t, second, 1)
}

func TestSplitTokensRespectsBudget(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = "word"
	}
	opts := Options{MaxTokens: 10, OverlapTokens: 0, Counter: WordCounter{}}.withDefaults()

	windows := splitTokens(strings.Join(words, " "), opts)
	require.Len(t, windows, 10)
	for _, w := range windows {
		assert.LessOrEqual(t, WordCounter{}.Count(w), 10)
	}
}

func TestSplitTokensOverlap(t *testing.T) {
	words := []string{"w0", "w1", "w2", "w3", "w4", "w5", "w6", "w7", "w8", "w9"}
	opts := Options{MaxTokens: 4, OverlapTokens: 1, Counter: WordCounter{}}.withDefaults()

	windows := splitTokens(strings.Join(words, " "), opts)
	require.Greater(t, len(windows), 1)

	// each window starts with the last word of the previous one
	for i := 1; i < len(windows); i++ {
		prev := strings.Fields(windows[i-1])
		cur := strings.Fields(windows[i])
		assert.Equal(t, prev[len(prev)-1], cur[0])
	}

	// every word survives somewhere
	joined := strings.Join(windows, " ")
	for _, w := range words {
		assert.Contains(t, joined, w)
	}
}

func TestSplitTokensAlwaysMakesProgress(t *testing.T) {
	// overlap >= max would stall a naive implementation; withDefaults clamps it
	opts := Options{MaxTokens: 2, OverlapTokens: 5, Counter: WordCounter{}}.withDefaults()
	windows := splitTokens("a b c d e f", opts)
	assert.NotEmpty(t, windows)
	assert.Less(t, len(windows), 20)
}

func TestSplitOversizedWord(t *testing.T) {
	long := strings.Repeat("x", 64)

	parts := splitOversizedWord(long, 8, countRunes{})
	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 8)
	}
	assert.Equal(t, long, strings.Join(parts, ""))
}

// countRunes bills one token per rune, making oversized words easy to build.
type countRunes struct{}

func (countRunes) Count(text string) int { return len([]rune(text)) }

func TestFingerprint(t *testing.T) {
	assert.Equal(t, fingerprint("Page  1   of 10"), fingerprint("page 1 of 10"))
	assert.Equal(t, "", fingerprint("   \t "))
	assert.NotEqual(t, fingerprint("chapter one"), fingerprint("chapter two"))
}

func TestDedupeLinesKeepsFirstOccurrence(t *testing.T) {
	seen := make(map[string]struct{})
	out := dedupeLines("alpha\nbeta\nalpha\n", seen)
	assert.Equal(t, "alpha beta", out)

	// second page reusing the fingerprints gets nothing back
	out = dedupeLines("ALPHA\n beta \n", seen)
	assert.Equal(t, "", out)
}

func TestNewCounter(t *testing.T) {
	c, err := NewCounter("")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Count("one two three"))

	c, err = NewCounter("words")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Count("   "))
}

func TestChunkEmptyTxt(t *testing.T) {
	chunks, err := Chunk([]byte("   \n \n"), "h", "empty.txt", Options{})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkErrorIsNotPartial(t *testing.T) {
	chunks, err := Chunk(nil, "h", "nope.pdf", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrMalformedInput))
	assert.Nil(t, chunks)
}
