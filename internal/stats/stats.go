// Package stats derives per-speaker talk statistics from a reconciled transcript.
package stats

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

const (
	// InterruptWindowMs is how soon after the previous turn ends a new speaker
	// must start to count as cutting in.
	InterruptWindowMs = 300
	// InterruptMinPrevMs is the minimum length of the interrupted turn.
	InterruptMinPrevMs = 1200
)

// Summary is the result of Compute.
type Summary struct {
	Stats []models.SpeakerStat `json:"stats"`
	// CoveredMs is the time during which at least one utterance is active.
	CoveredMs int64 `json:"covered_ms"`
}

// Get returns the stat for key.
func (s Summary) Get(key string) (models.SpeakerStat, bool) {
	for _, st := range s.Stats {
		if st.SpeakerKey == key {
			return st, true
		}
	}
	return models.SpeakerStat{}, false
}

type edge struct {
	at    int64
	delta int
	key   string
}

// Compute attributes talk time with an edge sweep: every elementary interval is
// split evenly among the speakers active in it, so overlapping speech is never
// double counted and the per-speaker totals never exceed CoveredMs.
func Compute(utts []models.ReconciledUtterance) Summary {
	talk := make(map[string]float64)
	names := make(map[string]string)
	turns := make(map[string]int)
	var order []string

	var edges []edge
	for _, u := range utts {
		key := u.SpeakerKey()
		if _, seen := turns[key]; !seen {
			order = append(order, key)
		}
		turns[key]++
		if n := u.Name(); n != "" {
			names[key] = n
		}
		if u.EndMs > u.StartMs {
			edges = append(edges, edge{u.StartMs, 1, key}, edge{u.EndMs, -1, key})
		}
	}
	slices.SortFunc(edges, func(a, b edge) int { return cmp.Compare(a.at, b.at) })

	active := make(map[string]int)
	var covered int64
	for i := 0; i < len(edges); {
		at := edges[i].at
		for ; i < len(edges) && edges[i].at == at; i++ {
			active[edges[i].key] += edges[i].delta
			if active[edges[i].key] == 0 {
				delete(active, edges[i].key)
			}
		}
		if i == len(edges) || len(active) == 0 {
			continue
		}
		span := edges[i].at - at
		covered += span
		share := float64(span) / float64(len(active))
		for key := range active {
			talk[key] += share
		}
	}

	interrupts, interrupted := interruptions(utts)
	silence := longestGaps(utts)

	out := make([]models.SpeakerStat, 0, len(order))
	for _, key := range order {
		ms := int64(math.Floor(talk[key] + 1e-9))
		ratio := 0.0
		if covered > 0 {
			ratio = float64(ms) / float64(covered)
		}
		out = append(out, models.SpeakerStat{
			SpeakerKey:          key,
			SpeakerName:         names[key],
			TalkTimeMs:          ms,
			TalkTimePct:         ratio,
			Turns:               turns[key],
			SilenceMs:           silence[key],
			Interruptions:       interrupts[key],
			InterruptedByOthers: interrupted[key],
		})
	}
	slices.SortStableFunc(out, func(a, b models.SpeakerStat) int {
		if c := cmp.Compare(b.TalkTimeMs, a.TalkTimeMs); c != 0 {
			return c
		}
		return strings.Compare(a.SpeakerKey, b.SpeakerKey)
	})
	return Summary{Stats: out, CoveredMs: covered}
}

func byStart(utts []models.ReconciledUtterance) []models.ReconciledUtterance {
	sorted := slices.Clone(utts)
	slices.SortStableFunc(sorted, func(a, b models.ReconciledUtterance) int {
		if c := cmp.Compare(a.StartMs, b.StartMs); c != 0 {
			return c
		}
		return cmp.Compare(a.EndMs, b.EndMs)
	})
	return sorted
}

// interruptions counts fast speaker switches after a sufficiently long turn.
func interruptions(utts []models.ReconciledUtterance) (by, of map[string]int) {
	by = make(map[string]int)
	of = make(map[string]int)
	sorted := byStart(utts)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		pk, ck := prev.SpeakerKey(), cur.SpeakerKey()
		if pk == ck {
			continue
		}
		if cur.StartMs <= prev.EndMs+InterruptWindowMs && prev.Duration() >= InterruptMinPrevMs {
			by[ck]++
			of[pk]++
		}
	}
	return by, of
}

// longestGaps returns the longest pause between consecutive turns of each speaker.
func longestGaps(utts []models.ReconciledUtterance) map[string]int64 {
	gaps := make(map[string]int64)
	lastEnd := make(map[string]int64)
	for _, u := range byStart(utts) {
		key := u.SpeakerKey()
		if end, ok := lastEnd[key]; ok {
			if g := u.StartMs - end; g > gaps[key] {
				gaps[key] = g
			}
			lastEnd[key] = max(end, u.EndMs)
			continue
		}
		gaps[key] = 0
		lastEnd[key] = u.EndMs
	}
	return gaps
}
