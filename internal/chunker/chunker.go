// Package chunker turns raw document bytes into ordered, deduplicated,
// token-bounded chunks ready for embedding.
package chunker

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"

	"exam-rag/internal/models"
)

const (
	defaultChunkTokens   = 250
	defaultOverlapTokens = 25
)

type Options struct {
	MaxTokens     int
	OverlapTokens int
	Counter       TokenCounter
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultChunkTokens
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	if o.OverlapTokens >= o.MaxTokens {
		o.OverlapTokens = o.MaxTokens / 2
	}
	if o.Counter == nil {
		o.Counter = WordCounter{}
	}
	return o
}

// page is extracted text with its 1-based source page number.
type page struct {
	number int
	text   string
}

// Chunk parses the document bytes, drops repeated boilerplate lines, and
// splits the surviving text into token-bounded windows. It either returns the
// complete chunk list or an error; a parse failure never yields partial
// output.
func Chunk(data []byte, fileHash, fileName string, opts Options) ([]models.Chunk, error) {
	var (
		pages []page
		err   error
	)
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".pdf":
		pages, err = extractPDFPages(data)
	case ".docx":
		pages, err = extractDOCXPages(data)
	case ".txt":
		pages = []page{{number: 1, text: string(data)}}
	default:
		return nil, fmt.Errorf("%w: unsupported file format %q", models.ErrMalformedInput, ext)
	}
	if err != nil {
		return nil, err
	}
	chunks := chunkPages(pages, fileHash, opts)
	log.Debug().Str("file", fileName).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Chunked document")
	return chunks, nil
}

// extractPDFPages reads page text row by row so running headers and footers
// stay on their own lines. The pdf library panics on some corrupt files, so
// panics are converted into a malformed-input error.
func extractPDFPages(data []byte) (pages []page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: pdf parser: %v", models.ErrMalformedInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", models.ErrMalformedInput, i, err)
		}
		var text strings.Builder
		for _, row := range rows {
			for _, t := range row.Content {
				text.WriteString(t.S)
			}
			text.WriteString("\n")
		}
		pages = append(pages, page{number: i, text: text.String()})
	}
	return pages, nil
}

// extractDOCXPages treats the whole document as one logical page; the format
// carries no page numbers.
func extractDOCXPages(data []byte) ([]page, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	defer r.Close()

	content := extractTextFromXML(r.Editable().GetContent())
	return []page{{number: 1, text: content}}, nil
}

// extractTextFromXML pulls the <w:t> text runs out of a DOCX document body,
// one paragraph per line.
func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	for _, para := range strings.Split(xmlContent, "</w:p>") {
		wrote := false
		parts := strings.Split(para, "<w:t")
		for i, part := range parts {
			if i == 0 {
				continue
			}
			// skip attributes up to the closing bracket of the opening tag
			closeIdx := strings.Index(part, ">")
			if closeIdx < 0 {
				continue
			}
			part = part[closeIdx+1:]
			endIdx := strings.Index(part, "</w:t>")
			if endIdx >= 0 {
				text.WriteString(part[:endIdx])
				wrote = true
			}
		}
		if wrote {
			text.WriteString("\n")
		}
	}
	return text.String()
}

// chunkPages applies whole-document line deduplication and splits each page
// into token windows. The fingerprint set lives for exactly one call, so
// state never leaks between ingestion runs.
func chunkPages(pages []page, fileHash string, opts Options) []models.Chunk {
	opts = opts.withDefaults()
	seen := make(map[string]struct{})

	var chunks []models.Chunk
	idx := 0
	for _, pg := range pages {
		clean := dedupeLines(pg.text, seen)
		if clean == "" {
			continue
		}
		for _, window := range splitTokens(clean, opts) {
			chunks = append(chunks, models.Chunk{
				Text:       window,
				PageNumber: pg.number,
				Index:      idx,
				FileHash:   fileHash,
			})
			idx++
		}
	}
	return chunks
}

// fingerprint normalizes a line for duplicate detection: whitespace collapsed
// to single spaces, case folded.
func fingerprint(line string) string {
	return strings.ToLower(strings.Join(strings.Fields(line), " "))
}

// dedupeLines drops every line whose fingerprint appeared earlier in the
// document, then rejoins the survivors with collapsed whitespace.
func dedupeLines(text string, seen map[string]struct{}) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		fp := fingerprint(line)
		if fp == "" {
			continue
		}
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		kept = append(kept, line)
	}
	return strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
}

// splitTokens windows the cleaned text into chunks of at most MaxTokens, with
// consecutive windows sharing roughly OverlapTokens of trailing content.
func splitTokens(text string, opts Options) []string {
	words := normalizeWords(strings.Fields(text), opts)
	if len(words) == 0 {
		return nil
	}

	cost := func(w string) int {
		c := opts.Counter.Count(w)
		if c < 1 {
			c = 1
		}
		return c
	}

	var out []string
	start := 0
	for start < len(words) {
		end := start
		used := 0
		for end < len(words) {
			c := cost(words[end])
			if used+c > opts.MaxTokens && end > start {
				break
			}
			used += c
			end++
		}

		out = append(out, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}

		// step back far enough to carry the overlap into the next window
		next := end
		overlap := 0
		for next > start+1 && overlap < opts.OverlapTokens {
			next--
			overlap += cost(words[next])
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// normalizeWords hard-splits any single word whose token cost alone exceeds
// the budget, so no window can ever be forced over it.
func normalizeWords(words []string, opts Options) []string {
	out := words[:0:0]
	for _, w := range words {
		out = append(out, splitOversizedWord(w, opts.MaxTokens, opts.Counter)...)
	}
	return out
}

func splitOversizedWord(w string, maxTokens int, counter TokenCounter) []string {
	if counter.Count(w) <= maxTokens {
		return []string{w}
	}
	runes := []rune(w)
	if len(runes) < 2 {
		return []string{w}
	}
	mid := len(runes) / 2
	return append(
		splitOversizedWord(string(runes[:mid]), maxTokens, counter),
		splitOversizedWord(string(runes[mid:]), maxTokens, counter)...,
	)
}
