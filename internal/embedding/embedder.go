// Package embedding provides text embedders and the memo-to-utterance
// semantic similarity used when linking teacher notes to the transcript.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/voxrecon/internal/config"
	"github.com/raphaelgruber/voxrecon/internal/llm"
)

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	Dimension() int
}

// ErrDisabled is returned by New when semantic matching is switched off.
var ErrDisabled = errors.New("text embeddings disabled")

// New creates an Embedder for the configured provider.
func New(cfg config.Config) (Embedder, error) {
	switch cfg.EmbedProvider {
	case config.ProviderNone, "":
		return nil, ErrDisabled
	case config.ProviderVoyage:
		return NewVoyageClient(cfg.VoyageAPIKey, cfg.EmbedModel, cfg.EmbedDimension)
	case config.ProviderOllama, config.ProviderOpenAI:
		e, err := llm.NewEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.EmbedProvider)
	}
}
