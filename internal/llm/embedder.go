package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/voxrecon/internal/config"
)

// Embedder embeds memo and utterance text through langchaingo and checks
// every vector against the configured dimension.
type Embedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
}

// NewEmbedder creates an embedder for the Ollama or OpenAI provider.
func NewEmbedder(cfg config.Config) (*Embedder, error) {
	client, err := embeddingClient(cfg)
	if err != nil {
		return nil, err
	}
	model, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.EmbedProvider, err)
	}
	return &Embedder{model: model, dimension: cfg.EmbedDimension, modelName: cfg.EmbedModel}, nil
}

func embeddingClient(cfg config.Config) (embeddings.EmbedderClient, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		c, err := ollama.New(ollama.WithModel(cfg.EmbedModel), ollama.WithServerURL(cfg.OllamaHost))
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return c, nil
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		c, err := openai.New(openai.WithToken(cfg.OpenAIAPIKey), openai.WithEmbeddingModel(cfg.EmbedModel))
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}
}

// Embed generates an embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vecs, err := e.model.EmbedDocuments(ctx, texts)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "texts", len(texts), "duration_ms", elapsed, "error", err)
		return nil, fmt.Errorf("embed: %w", wrapFatalError(err))
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", i, len(v), e.dimension)
		}
	}

	slog.Debug("embedded texts", "model", e.modelName, "texts", len(texts), "duration_ms", elapsed)
	return vecs, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.modelName }

// Dimension returns the expected embedding dimension.
func (e *Embedder) Dimension() int { return e.dimension }
