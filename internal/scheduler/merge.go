package scheduler

import (
	"slices"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// IncrementResult is the transcript produced by one processed window.
type IncrementResult struct {
	Index        int                `json:"index"`
	AudioStartMs int64              `json:"audio_start_ms"`
	AudioEndMs   int64              `json:"audio_end_ms"`
	Mode         Mode               `json:"mode"`
	Utterances   []models.Utterance `json:"utterances"`
}

// MergeIncrements collects one transcript from increment results ordered by index.
// The last cumulative increment supersedes earlier ones since it covers all prior
// audio. Chunk increments contribute only utterances starting at or after their
// window start plus overlapMs.
func MergeIncrements(results []IncrementResult, cumulativeThreshold int, overlapMs int64) []models.Utterance {
	if len(results) == 0 {
		return nil
	}
	lastCumulative := min(cumulativeThreshold-1, len(results)-1)

	var out []models.Utterance
	if lastCumulative >= 0 {
		out = append(out, results[lastCumulative].Utterances...)
	}
	for _, r := range results[lastCumulative+1:] {
		cutoff := r.AudioStartMs + overlapMs
		for _, u := range r.Utterances {
			if u.StartMs >= cutoff {
				out = append(out, u)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b models.Utterance) int {
		switch {
		case a.StartMs < b.StartMs:
			return -1
		case a.StartMs > b.StartMs:
			return 1
		}
		return 0
	})
	return out
}
