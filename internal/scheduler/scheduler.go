// Package scheduler decides when to run the next incremental processing window.
package scheduler

import "fmt"

// Session statuses that block scheduling.
const (
	StatusIdle       = "idle"
	StatusRecording  = "recording"
	StatusProcessing = "processing"
	StatusFinalizing = "finalizing"
	StatusCompleted  = "completed"
)

// Mode describes how the window relates to earlier audio.
type Mode string

const (
	// ModeCumulative re-processes from the start of the recording.
	ModeCumulative Mode = "cumulative"
	// ModeChunk processes only new audio plus a trailing overlap.
	ModeChunk Mode = "chunk"
)

// Config holds scheduling parameters.
type Config struct {
	IntervalMs          int64 `yaml:"interval_ms"`
	OverlapMs           int64 `yaml:"overlap_ms"`
	CumulativeThreshold int   `yaml:"cumulative_threshold"`
	// AnalysisEvery runs analysis on every Kth increment; 0 disables it.
	AnalysisEvery int `yaml:"analysis_every"`
}

// DefaultConfig returns a 3 minute interval with 30 s overlap.
func DefaultConfig() Config {
	return Config{
		IntervalMs:          180_000,
		OverlapMs:           30_000,
		CumulativeThreshold: 2,
		AnalysisEvery:       2,
	}
}

// Input is the session snapshot the scheduler decides on.
type Input struct {
	Enabled            bool
	Status             string
	UnprocessedEndMs   int64
	LastProcessedEndMs int64
	// IncrementIndex is the zero-based index of the increment about to run.
	IncrementIndex int
	Config         Config
}

// Decision is the scheduler output. When Schedule is false only Reason is set.
type Decision struct {
	Schedule       bool   `json:"schedule"`
	Reason         string `json:"reason"`
	StartMs        int64  `json:"start_ms"`
	EndMs          int64  `json:"end_ms"`
	Mode           Mode   `json:"mode,omitempty"`
	IncrementIndex int    `json:"increment_index"`
	RunAnalysis    bool   `json:"run_analysis"`
}

// Decide is a pure function of in.
func Decide(in Input) Decision {
	if !in.Enabled {
		return Decision{Reason: "disabled"}
	}
	switch in.Status {
	case StatusProcessing, StatusFinalizing:
		return Decision{Reason: "busy: " + in.Status}
	}
	span := in.UnprocessedEndMs - in.LastProcessedEndMs
	if span < in.Config.IntervalMs {
		return Decision{Reason: fmt.Sprintf("waiting: %dms of %dms", span, in.Config.IntervalMs)}
	}

	d := Decision{
		Schedule:       true,
		EndMs:          in.UnprocessedEndMs,
		IncrementIndex: in.IncrementIndex,
		RunAnalysis:    ShouldRunAnalysis(in.IncrementIndex, in.Config.AnalysisEvery),
	}
	if in.IncrementIndex < in.Config.CumulativeThreshold {
		d.Mode = ModeCumulative
		d.StartMs = 0
		d.Reason = "cumulative window"
	} else {
		d.Mode = ModeChunk
		d.StartMs = max(0, in.LastProcessedEndMs-in.Config.OverlapMs)
		d.Reason = "chunk window"
	}
	return d
}

// ShouldRunAnalysis reports whether the increment at index runs analysis.
func ShouldRunAnalysis(index, every int) bool {
	return every > 0 && (index+1)%every == 0
}
