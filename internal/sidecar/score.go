package sidecar

import (
	"fmt"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
)

func scoreCosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("score embeddings: empty embedding")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("score embeddings: dimension mismatch: %d vs %d", len(a), len(b))
	}
	return cluster.CosineSimilarity(a, b), nil
}
