package embedding

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/provider"
)

// Voyage AI defaults.
const (
	DefaultVoyageModel     = "voyage-3"
	DefaultVoyageDimension = 1024
	VoyageAPIEndpoint      = "https://api.voyageai.com/v1/embeddings"
)

// VoyageClient embeds text through the Voyage AI HTTP API.
type VoyageClient struct {
	apiKey    string
	model     string
	dimension int
	endpoint  string
	client    *http.Client
}

var _ Embedder = (*VoyageClient)(nil)

// NewVoyageClient returns a Voyage embedder. An empty model or a zero
// dimension selects the voyage-3 defaults.
func NewVoyageClient(apiKey, model string, dimension int) (*VoyageClient, error) {
	if apiKey == "" {
		return nil, errors.New("API key required for Voyage embeddings")
	}
	return &VoyageClient{
		apiKey:    apiKey,
		model:     cmp.Or(model, DefaultVoyageModel),
		dimension: cmp.Or(dimension, DefaultVoyageDimension),
		endpoint:  VoyageAPIEndpoint,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *VoyageClient) Model() string  { return c.model }
func (c *VoyageClient) Dimension() int { return c.dimension }

type voyageRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// Embed generates an embedding vector for text.
func (c *VoyageClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. The API may answer out of order,
// so vectors are placed by their reported index.
func (c *VoyageClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := voyageRequest{Input: texts, Model: c.model}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := provider.PostJSON(ctx, c.client, c.endpoint, c.apiKey, req, &resp); err != nil {
		return nil, fmt.Errorf("voyage embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		switch {
		case d.Index < 0 || d.Index >= len(out):
			return nil, fmt.Errorf("invalid embedding index: %d", d.Index)
		case len(d.Embedding) != c.dimension:
			return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", d.Index, len(d.Embedding), c.dimension)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
