// Package models defines the shared data structures of the voxrecon pipeline.
package models

// StreamRole identifies which capture stream an utterance came from.
type StreamRole string

const (
	StreamTeacher  StreamRole = "teacher"
	StreamStudents StreamRole = "students"
	StreamMixed    StreamRole = "mixed"
)

// Valid reports whether r is one of the known stream roles.
func (r StreamRole) Valid() bool {
	switch r {
	case StreamTeacher, StreamStudents, StreamMixed:
		return true
	}
	return false
}

// Word is a single timed token inside an utterance.
type Word struct {
	Word       string  `json:"word"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Utterance is an immutable transcript segment.
type Utterance struct {
	ID         string     `json:"id"`
	StreamRole StreamRole `json:"stream_role"`
	Text       string     `json:"text"`
	StartMs    int64      `json:"start_ms"`
	EndMs      int64      `json:"end_ms"`
	DurationMs int64      `json:"duration_ms"`
	Words      []Word     `json:"words,omitempty"`
	Language   string     `json:"language,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
}

// Duration returns the utterance length, preferring the explicit duration.
func (u Utterance) Duration() int64 {
	if u.DurationMs > 0 {
		return u.DurationMs
	}
	if u.EndMs > u.StartMs {
		return u.EndMs - u.StartMs
	}
	return 0
}

// Overlap returns the number of milliseconds [aStart,aEnd) and [bStart,bEnd) share.
func Overlap(aStart, aEnd, bStart, bEnd int64) int64 {
	lo := max(aStart, bStart)
	hi := min(aEnd, bEnd)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// DiarizationTurn is a local diarization span produced by an on-device track.
type DiarizationTurn struct {
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
	ClusterID string `json:"cluster_id"`
}
