package llmservice

import (
	"context"
	"strings"

	"exam-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewModel builds the generation model for the configured endpoint.
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	return openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	)
}

// GenerateContent calls the model and returns the first choice's text.
// JSON mode is requested so structured outputs come back parseable.
func GenerateContent(ctx context.Context, model llms.Model, prompt string) (string, error) {
	log.Debug().Int("prompt_len", len(prompt)).Msg("Generating content")

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	res, err := model.GenerateContent(ctx, messages, llms.WithJSONMode())
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", nil
	}
	return res.Choices[0].Content, nil
}

// Generator binds a model to the one-shot prompt call the exam writer needs.
type Generator struct {
	model llms.Model
}

func NewGenerator(model llms.Model) *Generator {
	return &Generator{model: model}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return GenerateContent(ctx, g.model, prompt)
}
