package models

// Decision is the trust level attached to a speaker attribution.
type Decision string

const (
	DecisionAuto    Decision = "auto"
	DecisionConfirm Decision = "confirm"
	DecisionUnknown Decision = "unknown"
)

// Valid reports whether d is a known decision value.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAuto, DecisionConfirm, DecisionUnknown:
		return true
	}
	return false
}

// SpeakerEvent is an external assertion about who spoke a given utterance.
// Empty strings mean the field was not asserted.
type SpeakerEvent struct {
	StreamRole  StreamRole `json:"stream_role"`
	UtteranceID string     `json:"utterance_id"`
	ClusterID   string     `json:"cluster_id,omitempty"`
	SpeakerName string     `json:"speaker_name,omitempty"`
	Decision    Decision   `json:"decision,omitempty"`
}

// CachedEmbedding is a voice embedding for one audio segment.
type CachedEmbedding struct {
	SegmentID       string     `json:"segment_id"`
	Embedding       []float32  `json:"embedding"`
	StartMs         int64      `json:"start_ms"`
	EndMs           int64      `json:"end_ms"`
	WindowClusterID string     `json:"window_cluster_id,omitempty"`
	StreamRole      StreamRole `json:"stream_role"`
}

// RosterEntry is an expected participant, optionally enrolled with a voice embedding.
type RosterEntry struct {
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Aliases   []string  `json:"aliases,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// ReconciledUtterance is an utterance with its resolved speaker attribution.
type ReconciledUtterance struct {
	Utterance
	ClusterID   string   `json:"cluster_id,omitempty"`
	SpeakerName *string  `json:"speaker_name"`
	Decision    Decision `json:"decision"`
	// Resolution names the rule that produced the attribution.
	Resolution string `json:"resolution"`
}

// Name returns the speaker name or "" when unresolved.
func (r ReconciledUtterance) Name() string {
	if r.SpeakerName == nil {
		return ""
	}
	return *r.SpeakerName
}

// SpeakerKey returns the grouping key for statistics and evidence:
// name, then cluster id, then "teacher" for the teacher stream, then "unknown".
func (r ReconciledUtterance) SpeakerKey() string {
	if n := r.Name(); n != "" {
		return n
	}
	if r.ClusterID != "" {
		return r.ClusterID
	}
	if r.StreamRole == StreamTeacher {
		return string(StreamTeacher)
	}
	return "unknown"
}

// SpeakerStat aggregates per-speaker talk metrics.
type SpeakerStat struct {
	SpeakerKey          string  `json:"speaker_key"`
	SpeakerName         string  `json:"speaker_name,omitempty"`
	TalkTimeMs          int64   `json:"talk_time_ms"`
	// TalkTimePct is the share of covered time, in [0,1].
	TalkTimePct         float64 `json:"talk_time_pct"`
	Turns               int     `json:"turns"`
	SilenceMs           int64   `json:"silence_ms"`
	Interruptions       int     `json:"interruptions"`
	InterruptedByOthers int     `json:"interrupted_by_others"`
}

// StrPtr returns a pointer to s, or nil for the empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
