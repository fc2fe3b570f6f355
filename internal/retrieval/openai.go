package retrieval

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Taichi-iskw/vidgraph/internal/config"
)

// llmGenerator implements Generator on a langchaingo model
type llmGenerator struct {
	model       llms.Model
	temperature float64
}

// NewGenerator wraps a langchaingo model
func NewGenerator(model llms.Model, temperature float64) Generator {
	return &llmGenerator{model: model, temperature: temperature}
}

func (g *llmGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g.model, prompt, llms.WithTemperature(g.temperature))
}

// NewOpenAI builds the OpenAI-backed generator and embedder from config
func NewOpenAI(cfg config.OpenAIConfig) (Generator, Embedder, error) {
	if cfg.APIKey == "" {
		return nil, nil, fmt.Errorf("OpenAI API key is not configured (set openai.api_key or OPENAI_API_KEY)")
	}

	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.LLMModel),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(64))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return NewGenerator(llm, cfg.Temperature), embedder, nil
}
