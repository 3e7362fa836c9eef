package cluster

import (
	"fmt"
	"sync"
)

// Online assigns embeddings one at a time to running-mean centroids. It labels
// window clusters for segments that arrive without one.
type Online struct {
	mu        sync.Mutex
	threshold float64
	ids       []string
	centroids map[string][]float32
	counts    map[string]int
}

// NewOnline creates an assigner that joins an existing cluster when the cosine
// similarity to its centroid is at least threshold.
func NewOnline(threshold float64) *Online {
	return &Online{
		threshold: threshold,
		centroids: make(map[string][]float32),
		counts:    make(map[string]int),
	}
}

// Assign returns the cluster for v and the similarity to its centroid. A new
// cluster is created when no centroid is close enough; its first score is 1.0
// when it is the only cluster, otherwise the best similarity seen.
func (o *Online) Assign(v []float32) (string, float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.ids) == 0 {
		return o.create(v), 1.0
	}

	best := ""
	bestScore := -1.0
	for _, id := range o.ids {
		if s := CosineSimilarity(v, o.centroids[id]); s > bestScore {
			best, bestScore = id, s
		}
	}
	if best != "" && bestScore >= o.threshold {
		c := o.centroids[best]
		n := float32(o.counts[best])
		for i := range c {
			if i < len(v) {
				c[i] = (c[i]*n + v[i]) / (n + 1)
			}
		}
		o.counts[best]++
		return best, bestScore
	}
	return o.create(v), bestScore
}

func (o *Online) create(v []float32) string {
	id := fmt.Sprintf("c%d", len(o.ids)+1)
	c := make([]float32, len(v))
	copy(c, v)
	o.ids = append(o.ids, id)
	o.centroids[id] = c
	o.counts[id] = 1
	return id
}

// Len returns the number of clusters created so far.
func (o *Online) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ids)
}
