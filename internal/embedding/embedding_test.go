package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxrecon/internal/config"
	"github.com/raphaelgruber/voxrecon/internal/models"
)

// keywordEmbedder maps each text onto fixed topic axes.
type keywordEmbedder struct {
	calls int
	err   error
}

var topics = []string{"budget", "timeline", "design"}

func (k *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := k.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (k *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(topics))
		for j, topic := range topics {
			if strings.Contains(strings.ToLower(t), topic) {
				v[j] = 1
			}
		}
		out[i] = v
	}
	return out, nil
}

func (k *keywordEmbedder) Model() string  { return "keywords" }
func (k *keywordEmbedder) Dimension() int { return len(topics) }

func reconciled(id string, role models.StreamRole, text string) models.ReconciledUtterance {
	return models.ReconciledUtterance{Utterance: models.Utterance{ID: id, StreamRole: role, Text: text}}
}

func TestSemantic(t *testing.T) {
	memos := []models.Memo{
		{MemoID: "m1", Text: "Strong budget reasoning"},
		{MemoID: "m2", Text: "   "},
	}
	transcript := []models.ReconciledUtterance{
		reconciled("u1", models.StreamStudents, "The budget is too small"),
		reconciled("u2", models.StreamStudents, "Let's revisit the timeline"),
		reconciled("u3", models.StreamTeacher, "Talk about the budget"),
	}

	e := &keywordEmbedder{}
	got, err := Semantic(context.Background(), e, memos, transcript)
	require.NoError(t, err)
	assert.Equal(t, 1, e.calls, "one batch for all texts")

	require.Contains(t, got, "m1")
	assert.NotContains(t, got, "m2")
	assert.InDelta(t, 1.0, got["m1"]["u1"], 1e-9)
	assert.NotContains(t, got["m1"], "u2", "orthogonal texts are dropped")
	assert.NotContains(t, got["m1"], "u3", "teacher utterances are excluded")
}

func TestSemanticNothingToCompare(t *testing.T) {
	e := &keywordEmbedder{}
	got, err := Semantic(context.Background(), e, nil, []models.ReconciledUtterance{reconciled("u1", models.StreamStudents, "hi")})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, e.calls)
}

func TestSemanticPropagatesErrors(t *testing.T) {
	e := &keywordEmbedder{err: errors.New("offline")}
	_, err := Semantic(context.Background(), e,
		[]models.Memo{{MemoID: "m1", Text: "budget"}},
		[]models.ReconciledUtterance{reconciled("u1", models.StreamStudents, "budget")})
	assert.ErrorContains(t, err, "offline")
}

func TestVoyageClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req voyageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultVoyageModel, req.Model)

		// Reverse order to exercise index sorting.
		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float32{float32(i), 0}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	c, err := NewVoyageClient("key", "", 2)
	require.NoError(t, err)
	c.endpoint = srv.URL

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0}, {1, 0}, {2, 0}}, vecs)

	empty, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestVoyageClientDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2,3],"index":0}]}`))
	}))
	defer srv.Close()

	c, err := NewVoyageClient("key", "", 2)
	require.NoError(t, err)
	c.endpoint = srv.URL

	_, err = c.Embed(context.Background(), "a")
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestNewVoyageClientRequiresKey(t *testing.T) {
	_, err := NewVoyageClient("", "", 0)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrDisabled)

	cfg.EmbedProvider = config.ProviderVoyage
	cfg.VoyageAPIKey = "key"
	e, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.EmbedModel, e.Model())

	cfg.EmbedProvider = "cohere"
	_, err = New(cfg)
	assert.Error(t, err)
}
