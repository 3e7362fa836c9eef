package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
	"github.com/raphaelgruber/voxrecon/internal/models"
)

// Semantic embeds every memo and every non-teacher utterance in one batch and
// returns memo id -> utterance id -> cosine similarity. Negative similarities
// are dropped.
func Semantic(ctx context.Context, e Embedder, memos []models.Memo, transcript []models.ReconciledUtterance) (map[string]map[string]float64, error) {
	var texts []string
	var memoIdx []int
	for i, m := range memos {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		memoIdx = append(memoIdx, i)
		texts = append(texts, m.Text)
	}
	if len(memoIdx) == 0 {
		return map[string]map[string]float64{}, nil
	}

	var uttIdx []int
	for i, u := range transcript {
		if u.StreamRole == models.StreamTeacher || strings.TrimSpace(u.Text) == "" {
			continue
		}
		uttIdx = append(uttIdx, i)
		texts = append(texts, u.Text)
	}
	if len(uttIdx) == 0 {
		return map[string]map[string]float64{}, nil
	}

	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("semantic similarity: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("semantic similarity: got %d vectors for %d texts", len(vecs), len(texts))
	}

	out := make(map[string]map[string]float64, len(memoIdx))
	for mi, m := range memoIdx {
		scores := make(map[string]float64)
		for ui, u := range uttIdx {
			s := cluster.CosineSimilarity(vecs[mi], vecs[len(memoIdx)+ui])
			if s > 0 {
				scores[transcript[u].ID] = s
			}
		}
		out[memos[m].MemoID] = scores
	}
	return out, nil
}
