package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhowland/camsift/internal/config"
)

type fakeBackend struct {
	vec []float32
	err error
}

func (f *fakeBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func TestNewEmbedder_Gemini(t *testing.T) {
	cfg := config.Config{
		EmbedProvider:  config.ProviderGemini,
		EmbedModel:     "text-embedding-004",
		EmbedDimension: 3,
	}

	e, err := NewEmbedder(cfg, &fakeBackend{vec: []float32{1, 2, 3}})
	require.NoError(t, err, "failed to create embedder")
	assert.Equal(t, "text-embedding-004", e.Model())
	assert.Equal(t, 3, e.Dimension())

	vec, err := e.Embed(context.Background(), "a dog")
	require.NoError(t, err, "failed to embed")
	assert.Len(t, vec, 3)
}

func TestNewEmbedder_GeminiRequiresClient(t *testing.T) {
	cfg := config.Config{EmbedProvider: config.ProviderGemini}
	_, err := NewEmbedder(cfg, nil)
	assert.Error(t, err, "creating a gemini embedder without a backend should fail")
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	cfg := config.Config{EmbedProvider: "carrier-pigeon"}
	_, err := NewEmbedder(cfg, nil)
	assert.Error(t, err, "an unknown provider should fail")
}

func TestNewEmbedder_OpenAIRequiresKey(t *testing.T) {
	cfg := config.Config{EmbedProvider: config.ProviderOpenAI}
	_, err := NewEmbedder(cfg, nil)
	assert.Error(t, err, "openai without a key should fail")
}

func TestGeminiEmbedder_DimensionMismatch(t *testing.T) {
	cfg := config.Config{
		EmbedProvider:  config.ProviderGemini,
		EmbedModel:     "text-embedding-004",
		EmbedDimension: 768,
	}
	e, err := NewEmbedder(cfg, &fakeBackend{vec: []float32{1, 2}})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "a dog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestGeminiEmbedder_ZeroDimensionSkipsCheck(t *testing.T) {
	cfg := config.Config{
		EmbedProvider: config.ProviderGemini,
		EmbedModel:    "text-embedding-004",
	}
	e, err := NewEmbedder(cfg, &fakeBackend{vec: []float32{1, 2}})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "a dog")
	assert.NoError(t, err, "no configured dimension means no length check")
}

func TestGeminiEmbedder_BackendError(t *testing.T) {
	cfg := config.Config{EmbedProvider: config.ProviderGemini}
	backendErr := errors.New("backend down")
	e, err := NewEmbedder(cfg, &fakeBackend{err: backendErr})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, backendErr)
}
