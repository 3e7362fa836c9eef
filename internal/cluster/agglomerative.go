package cluster

import (
	"fmt"
	"math"
	"slices"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// Linkage selects how the distance between two clusters is derived from member distances.
type Linkage string

const (
	LinkageAverage  Linkage = "average"
	LinkageComplete Linkage = "complete"
	LinkageSingle   Linkage = "single"
)

// ParseLinkage validates a linkage name. An empty name selects average.
func ParseLinkage(s string) (Linkage, error) {
	switch Linkage(s) {
	case "":
		return LinkageAverage, nil
	case LinkageAverage, LinkageComplete, LinkageSingle:
		return Linkage(s), nil
	}
	return "", fmt.Errorf("unknown linkage: %s", s)
}

// Options controls agglomerative clustering.
type Options struct {
	Linkage Linkage
	// Threshold is the cosine distance above which clusters stop merging.
	Threshold float64
	// MinClusterSize drops clusters with fewer members. Values <= 1 keep everything.
	MinClusterSize int
}

// DefaultOptions returns average linkage at distance 0.3.
func DefaultOptions() Options {
	return Options{Linkage: LinkageAverage, Threshold: 0.3, MinClusterSize: 1}
}

// Result is the outcome of a global clustering run.
type Result struct {
	// IDs lists cluster ids ordered by their earliest member.
	IDs        []string             `json:"ids"`
	Clusters   map[string][]string  `json:"clusters"`
	Centroids  map[string][]float32 `json:"centroids"`
	Confidence float64              `json:"confidence"`
}

// ClusterOf returns the cluster containing segmentID.
func (r Result) ClusterOf(segmentID string) (string, bool) {
	for _, id := range r.IDs {
		if slices.Contains(r.Clusters[id], segmentID) {
			return id, true
		}
	}
	return "", false
}

// ClusterID formats the synthetic id of the i-th cluster.
func ClusterID(i int) string {
	return fmt.Sprintf("spk_%02d", i)
}

func emptyResult() Result {
	return Result{
		IDs:       []string{},
		Clusters:  map[string][]string{},
		Centroids: map[string][]float32{},
	}
}

// Agglomerative clusters entries bottom-up by cosine distance. Merging stops when
// the closest pair of clusters is farther apart than opts.Threshold.
func Agglomerative(entries []models.CachedEmbedding, opts Options) Result {
	n := len(entries)
	res := emptyResult()
	if n == 0 {
		return res
	}
	if n == 1 {
		id := ClusterID(0)
		res.IDs = []string{id}
		res.Clusters[id] = []string{entries[0].SegmentID}
		res.Centroids[id] = slices.Clone(entries[0].Embedding)
		res.Confidence = 1.0
		return res
	}
	if opts.Linkage == "" {
		opts.Linkage = LinkageAverage
	}

	dist := pairwiseDistances(entries)
	groups := mergeGroups(dist, opts)

	if opts.MinClusterSize > 1 {
		groups = slices.DeleteFunc(groups, func(g []int) bool { return len(g) < opts.MinClusterSize })
	}
	for _, g := range groups {
		slices.Sort(g)
	}
	slices.SortFunc(groups, func(a, b []int) int {
		sa, sb := earliest(entries, a), earliest(entries, b)
		if sa != sb {
			if sa < sb {
				return -1
			}
			return 1
		}
		return a[0] - b[0]
	})

	for i, g := range groups {
		id := ClusterID(i)
		members := make([]string, len(g))
		vecs := make([][]float32, len(g))
		for j, idx := range g {
			members[j] = entries[idx].SegmentID
			vecs[j] = entries[idx].Embedding
		}
		res.IDs = append(res.IDs, id)
		res.Clusters[id] = members
		res.Centroids[id] = Mean(vecs)
	}
	res.Confidence = confidence(dist, groups)
	return res
}

func pairwiseDistances(entries []models.CachedEmbedding) [][]float64 {
	n := len(entries)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := range n {
		for j := i + 1; j < n; j++ {
			d := CosineDistance(entries[i].Embedding, entries[j].Embedding)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// mergeGroups runs the merge loop with Lance-Williams updates on a working copy of dist.
func mergeGroups(dist [][]float64, opts Options) [][]int {
	n := len(dist)
	d := make([][]float64, n)
	for i := range dist {
		d[i] = slices.Clone(dist[i])
	}
	groups := make([][]int, n)
	alive := make([]bool, n)
	for i := range n {
		groups[i] = []int{i}
		alive[i] = true
	}

	for {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := range n {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if alive[j] && d[i][j] < best {
					best = d[i][j]
					bi, bj = i, j
				}
			}
		}
		if bi < 0 || best > opts.Threshold {
			break
		}

		si, sj := float64(len(groups[bi])), float64(len(groups[bj]))
		for k := range n {
			if !alive[k] || k == bi || k == bj {
				continue
			}
			var nd float64
			switch opts.Linkage {
			case LinkageSingle:
				nd = math.Min(d[bi][k], d[bj][k])
			case LinkageComplete:
				nd = math.Max(d[bi][k], d[bj][k])
			default:
				nd = (si*d[bi][k] + sj*d[bj][k]) / (si + sj)
			}
			d[bi][k] = nd
			d[k][bi] = nd
		}
		groups[bi] = append(groups[bi], groups[bj]...)
		groups[bj] = nil
		alive[bj] = false
	}

	out := make([][]int, 0, n)
	for i, g := range groups {
		if alive[i] {
			out = append(out, g)
		}
	}
	return out
}

func earliest(entries []models.CachedEmbedding, g []int) int64 {
	m := entries[g[0]].StartMs
	for _, idx := range g[1:] {
		m = min(m, entries[idx].StartMs)
	}
	return m
}

// confidence scores cluster separation in [0, 1] using a mean silhouette,
// scaled down when there are fewer than two points per cluster on average.
func confidence(dist [][]float64, groups [][]int) float64 {
	points := 0
	for _, g := range groups {
		points += len(g)
	}
	if points == 0 {
		return 0
	}
	if points == 1 {
		return 1
	}

	var score float64
	if len(groups) == 1 {
		score = 1 - meanIntra(dist, groups[0])
	} else {
		var total float64
		for gi, g := range groups {
			if len(g) < 2 {
				continue
			}
			for _, p := range g {
				a := meanTo(dist, p, g)
				b := math.Inf(1)
				for oj, other := range groups {
					if oj != gi {
						b = math.Min(b, meanTo(dist, p, other))
					}
				}
				if denom := math.Max(a, b); denom > 0 {
					total += (b - a) / denom
				}
			}
		}
		score = total / float64(points)
	}

	score *= math.Min(1, float64(points)/float64(2*len(groups)))
	return math.Max(0, math.Min(1, score))
}

func meanTo(dist [][]float64, p int, g []int) float64 {
	var sum float64
	cnt := 0
	for _, q := range g {
		if q == p {
			continue
		}
		sum += dist[p][q]
		cnt++
	}
	if cnt == 0 {
		return 0
	}
	return sum / float64(cnt)
}

func meanIntra(dist [][]float64, g []int) float64 {
	var sum float64
	cnt := 0
	for i := range g {
		for j := i + 1; j < len(g); j++ {
			sum += dist[g[i]][g[j]]
			cnt++
		}
	}
	if cnt == 0 {
		return 0
	}
	return sum / float64(cnt)
}
