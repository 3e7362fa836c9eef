package cluster

import (
	"cmp"
	"maps"
	"slices"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// RosterMapping maps cluster ids to display names. Unmatched clusters map to their own id.
type RosterMapping struct {
	Names   map[string]string  `json:"names"`
	Scores  map[string]float64 `json:"scores"`
	Matched map[string]bool    `json:"matched"`
}

// Name returns the display name for clusterID and whether it came from the roster.
func (m RosterMapping) Name(clusterID string) (string, bool) {
	if m.Matched[clusterID] {
		return m.Names[clusterID], true
	}
	return clusterID, false
}

type rosterPair struct {
	roster  int
	cluster int
	score   float64
}

// MatchRoster assigns roster names to clusters greedily by descending centroid
// similarity. A pair is only considered when its score is at least threshold, and
// each roster name and each cluster is used at most once.
func MatchRoster(res Result, roster []models.RosterEntry, threshold float64) RosterMapping {
	m := RosterMapping{
		Names:   make(map[string]string, len(res.IDs)),
		Scores:  make(map[string]float64, len(res.IDs)),
		Matched: make(map[string]bool, len(res.IDs)),
	}
	for _, id := range res.IDs {
		m.Names[id] = id
	}

	var pairs []rosterPair
	for ri, entry := range roster {
		if len(entry.Embedding) == 0 || entry.Name == "" {
			continue
		}
		for ci, id := range res.IDs {
			s := CosineSimilarity(entry.Embedding, res.Centroids[id])
			if s >= threshold {
				pairs = append(pairs, rosterPair{roster: ri, cluster: ci, score: s})
			}
		}
	}
	slices.SortFunc(pairs, func(a, b rosterPair) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.roster, b.roster); c != 0 {
			return c
		}
		return cmp.Compare(a.cluster, b.cluster)
	})

	usedRoster := make(map[int]bool)
	usedName := make(map[string]bool)
	for _, p := range pairs {
		id := res.IDs[p.cluster]
		name := roster[p.roster].Name
		if usedRoster[p.roster] || usedName[name] || m.Matched[id] {
			continue
		}
		usedRoster[p.roster] = true
		usedName[name] = true
		m.Names[id] = name
		m.Scores[id] = p.score
		m.Matched[id] = true
	}
	return m
}

// WindowMapping restates m in terms of the window-local cluster ids that
// speaker events carry. Each window id follows the global cluster holding
// most of its audio; ties go to the lower global id. Window ids whose
// majority cluster is not matched are left out.
func WindowMapping(entries []models.CachedEmbedding, res Result, m RosterMapping) RosterMapping {
	global := make(map[string]string, len(entries))
	for _, id := range res.IDs {
		for _, seg := range res.Clusters[id] {
			global[seg] = id
		}
	}

	// window id -> global id -> covered ms
	share := make(map[string]map[string]int64)
	for _, e := range entries {
		g, ok := global[e.SegmentID]
		if !ok || e.WindowClusterID == "" {
			continue
		}
		if share[e.WindowClusterID] == nil {
			share[e.WindowClusterID] = make(map[string]int64)
		}
		share[e.WindowClusterID][g] += max(e.EndMs-e.StartMs, 1)
	}

	out := RosterMapping{
		Names:   make(map[string]string),
		Scores:  make(map[string]float64),
		Matched: make(map[string]bool),
	}
	for window, byGlobal := range share {
		best, bestMs := "", int64(-1)
		for _, g := range slices.Sorted(maps.Keys(byGlobal)) {
			if byGlobal[g] > bestMs {
				best, bestMs = g, byGlobal[g]
			}
		}
		if !m.Matched[best] {
			continue
		}
		out.Names[window] = m.Names[best]
		out.Scores[window] = m.Scores[best]
		out.Matched[window] = true
	}
	return out
}
