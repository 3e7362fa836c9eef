package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

func TestDecide(t *testing.T) {
	cfg := Config{IntervalMs: 60_000, OverlapMs: 10_000, CumulativeThreshold: 2, AnalysisEvery: 3}

	tests := []struct {
		name     string
		in       Input
		schedule bool
		startMs  int64
		endMs    int64
		mode     Mode
		analysis bool
	}{
		{
			name: "disabled",
			in:   Input{Enabled: false, UnprocessedEndMs: 600_000, Config: cfg},
		},
		{
			name: "processing",
			in:   Input{Enabled: true, Status: StatusProcessing, UnprocessedEndMs: 600_000, Config: cfg},
		},
		{
			name: "finalizing",
			in:   Input{Enabled: true, Status: StatusFinalizing, UnprocessedEndMs: 600_000, Config: cfg},
		},
		{
			name: "span below interval",
			in:   Input{Enabled: true, Status: StatusRecording, UnprocessedEndMs: 59_999, Config: cfg},
		},
		{
			name:     "span exactly interval",
			in:       Input{Enabled: true, Status: StatusRecording, UnprocessedEndMs: 60_000, Config: cfg},
			schedule: true, startMs: 0, endMs: 60_000, mode: ModeCumulative,
		},
		{
			name: "cumulative below threshold",
			in: Input{Enabled: true, Status: StatusRecording, UnprocessedEndMs: 130_000,
				LastProcessedEndMs: 60_000, IncrementIndex: 1, Config: cfg},
			schedule: true, startMs: 0, endMs: 130_000, mode: ModeCumulative,
		},
		{
			name: "chunk with overlap",
			in: Input{Enabled: true, Status: StatusRecording, UnprocessedEndMs: 200_000,
				LastProcessedEndMs: 130_000, IncrementIndex: 2, Config: cfg},
			schedule: true, startMs: 120_000, endMs: 200_000, mode: ModeChunk, analysis: true,
		},
		{
			name: "chunk start clamped at zero",
			in: Input{Enabled: true, Status: StatusIdle, UnprocessedEndMs: 65_000,
				LastProcessedEndMs: 5_000, IncrementIndex: 4,
				Config: Config{IntervalMs: 60_000, OverlapMs: 10_000}},
			schedule: true, startMs: 0, endMs: 65_000, mode: ModeChunk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.in)
			assert.Equal(t, tt.schedule, got.Schedule)
			assert.NotEmpty(t, got.Reason)
			if !tt.schedule {
				return
			}
			assert.Equal(t, tt.startMs, got.StartMs)
			assert.Equal(t, tt.endMs, got.EndMs)
			assert.Equal(t, tt.mode, got.Mode)
			assert.Equal(t, tt.analysis, got.RunAnalysis)
			assert.Equal(t, tt.in.IncrementIndex, got.IncrementIndex)
		})
	}
}

func TestShouldRunAnalysis(t *testing.T) {
	assert.False(t, ShouldRunAnalysis(0, 0))
	assert.False(t, ShouldRunAnalysis(5, 0))
	assert.True(t, ShouldRunAnalysis(0, 1))
	assert.False(t, ShouldRunAnalysis(0, 2))
	assert.True(t, ShouldRunAnalysis(1, 2))
	assert.True(t, ShouldRunAnalysis(3, 2))
}

func TestMergeIncrements(t *testing.T) {
	utt := func(id string, start int64) models.Utterance {
		return models.Utterance{ID: id, StartMs: start, EndMs: start + 1000}
	}
	results := []IncrementResult{
		{Index: 0, AudioStartMs: 0, AudioEndMs: 60_000, Mode: ModeCumulative,
			Utterances: []models.Utterance{utt("old-a", 1_000)}},
		{Index: 1, AudioStartMs: 0, AudioEndMs: 120_000, Mode: ModeCumulative,
			Utterances: []models.Utterance{utt("a", 1_000), utt("b", 70_000)}},
		{Index: 2, AudioStartMs: 110_000, AudioEndMs: 180_000, Mode: ModeChunk,
			Utterances: []models.Utterance{utt("dup-b", 112_000), utt("c", 125_000), utt("d", 150_000)}},
	}

	got := MergeIncrements(results, 2, 10_000)

	ids := make([]string, len(got))
	for i, u := range got {
		ids[i] = u.ID
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestMergeIncrementsAllChunks(t *testing.T) {
	results := []IncrementResult{
		{AudioStartMs: 0, Utterances: []models.Utterance{{ID: "a", StartMs: 0}}},
		{AudioStartMs: 50_000, Utterances: []models.Utterance{{ID: "b", StartMs: 52_000}, {ID: "c", StartMs: 70_000}}},
	}
	got := MergeIncrements(results, 0, 10_000)
	assert.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	assert.Nil(t, MergeIncrements(nil, 2, 0))
}
