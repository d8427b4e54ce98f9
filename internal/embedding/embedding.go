package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"exam-rag/internal/config"
	"exam-rag/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewEmbedder builds a langchaingo embedder for the configured provider.
func NewEmbedder(cfg *config.LLMConfig) (embeddings.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai", "":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// NewOpenAIEmbedder targets any OpenAI-compatible endpoint (OpenRouter etc).
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// Client wraps a fallible remote embedder with bounded retry and exponential
// backoff. It never returns a partial result: either every input text gets a
// vector, in input order, or the call fails.
type Client struct {
	embedder   embeddings.Embedder
	maxRetries int
	baseDelay  time.Duration
}

func NewClient(embedder embeddings.Embedder, maxRetries int, baseDelay time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Client{embedder: embedder, maxRetries: maxRetries, baseDelay: baseDelay}
}

// EmbedBatch embeds one pre-sized sub-batch of texts. Callers split larger
// lists into batches themselves; the client does not re-batch.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var vectors [][]float32
	err := c.retry(ctx, func() error {
		var err error
		vectors, err = c.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := c.retry(ctx, func() error {
		var err error
		vector, err = c.embedder.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// retry runs fn up to maxRetries times, doubling the delay after each failed
// attempt. Exhaustion surfaces as ErrEmbeddingUnavailable with the last
// provider error attached.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == c.maxRetries-1 {
			break
		}
		delay := c.baseDelay << attempt
		log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("delay", delay).Msg("Embedding attempt failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, lastErr)
}
