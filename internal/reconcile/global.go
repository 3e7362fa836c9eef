package reconcile

import (
	"github.com/raphaelgruber/voxrecon/internal/cluster"
	"github.com/raphaelgruber/voxrecon/internal/models"
)

// GlobalView is a global clustering result together with the embeddings it was
// computed from and their roster mapping.
type GlobalView struct {
	Embeddings []models.CachedEmbedding
	Result     cluster.Result
	Mapping    cluster.RosterMapping
	segment    map[string]string
}

// NewGlobalView indexes res for utterance lookups.
func NewGlobalView(embeddings []models.CachedEmbedding, res cluster.Result, mapping cluster.RosterMapping) *GlobalView {
	seg := make(map[string]string)
	for _, id := range res.IDs {
		for _, s := range res.Clusters[id] {
			seg[s] = id
		}
	}
	return &GlobalView{Embeddings: embeddings, Result: res, Mapping: mapping, segment: seg}
}

// Resolve finds the global cluster of the embedding overlapping u the most.
// covered is false when no clustered embedding of u's stream overlaps it.
func (g *GlobalView) Resolve(u models.Utterance) (clusterID, name string, matched, covered bool) {
	var best models.CachedEmbedding
	var bestOverlap int64
	for _, e := range g.Embeddings {
		if e.StreamRole != u.StreamRole {
			continue
		}
		if _, ok := g.segment[e.SegmentID]; !ok {
			continue
		}
		if ov := models.Overlap(u.StartMs, u.EndMs, e.StartMs, e.EndMs); ov > bestOverlap {
			best, bestOverlap = e, ov
		}
	}
	if bestOverlap == 0 {
		return "", "", false, false
	}
	clusterID = g.segment[best.SegmentID]
	name, matched = g.Mapping.Name(clusterID)
	return clusterID, name, matched, true
}
