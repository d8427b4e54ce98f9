package chunker

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures how many tokens a span of text costs against the
// chunk budget.
type TokenCounter interface {
	Count(text string) int
}

// WordCounter approximates tokens by whitespace-separated words. It needs no
// vocabulary files and is the default.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TiktokenCounter counts BPE tokens with a tiktoken encoding, matching what
// hosted embedding models actually bill and truncate on.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewCounter picks a counter by name: "words" (or empty) for the word
// approximation, anything else is treated as a tiktoken encoding name.
func NewCounter(name string) (TokenCounter, error) {
	if name == "" || name == "words" {
		return WordCounter{}, nil
	}
	return NewTiktokenCounter(name)
}
