// Package llm provides the embedding abstraction used by category
// assignment, with Gemini, Ollama, and OpenAI backends.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/jhowland/camsift/internal/config"
)

// Embedder generates semantic-similarity embeddings for descriptions.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension. Must match the
	// dimension of the precomputed catalog embeddings.
	Dimension() int
}

// GeminiBackend is the subset of the Gemini client the embedder needs.
type GeminiBackend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder creates an Embedder based on configuration. The Gemini
// provider reuses the pipeline's API client; Ollama and OpenAI go through
// langchaingo.
func NewEmbedder(cfg config.Config, geminiClient GeminiBackend) (Embedder, error) {
	switch cfg.EmbedProvider {
	case config.ProviderGemini, "":
		if geminiClient == nil {
			return nil, fmt.Errorf("gemini embedding provider requires an API client")
		}
		return &geminiEmbedder{
			backend:   geminiClient,
			modelName: cfg.EmbedModel,
			dimension: cfg.EmbedDimension,
		}, nil

	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		model, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
		return &langchainEmbedder{model: model, modelName: cfg.EmbedModel, dimension: cfg.EmbedDimension}, nil

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		model, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
		return &langchainEmbedder{model: model, modelName: cfg.EmbedModel, dimension: cfg.EmbedDimension}, nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}
}

// geminiEmbedder adapts the pipeline's Gemini client to the Embedder
// interface with dimension validation.
type geminiEmbedder struct {
	backend   GeminiBackend
	modelName string
	dimension int
}

var _ Embedder = (*geminiEmbedder)(nil)

func (e *geminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := e.backend.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if e.dimension > 0 && len(vec) != e.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d (model: %s)",
			len(vec), e.dimension, e.modelName)
	}
	slog.Debug("embedding complete", "model", e.modelName, "text_len", len(text),
		"duration_ms", time.Since(start).Milliseconds())
	return vec, nil
}

func (e *geminiEmbedder) Model() string  { return e.modelName }
func (e *geminiEmbedder) Dimension() int { return e.dimension }

// langchainEmbedder wraps langchaingo embeddings with dimension validation.
type langchainEmbedder struct {
	model     embeddings.Embedder
	modelName string
	dimension int
}

var _ Embedder = (*langchainEmbedder)(nil)

func (e *langchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.model.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	vec := vectors[0]
	if e.dimension > 0 && len(vec) != e.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d (model: %s)",
			len(vec), e.dimension, e.modelName)
	}
	return vec, nil
}

func (e *langchainEmbedder) Model() string  { return e.modelName }
func (e *langchainEmbedder) Dimension() int { return e.dimension }
