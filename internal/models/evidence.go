package models

// Evidence types.
const (
	EvidenceQuote              = "quote"
	EvidenceTranscriptQuote    = "transcript_quote"
	EvidenceStatsSummary       = "stats_summary"
	EvidenceInteractionPattern = "interaction_pattern"
)

// Evidence sources.
const (
	SourceSemanticMatch = "semantic_match"
	SourceMemoText      = "memo_text"
	SourceAutoGenerated = "auto_generated"
)

// Evidence is a citation supporting a report claim.
type Evidence struct {
	EvidenceID   string   `json:"evidence_id"`
	Type         string   `json:"type"`
	UtteranceIDs []string `json:"utterance_ids"`
	SpeakerKey   string   `json:"speaker_key,omitempty"`
	Quote        string   `json:"quote"`
	TimeRangeMs  [2]int64 `json:"time_range_ms"`
	Confidence   float64  `json:"confidence"`
	Source       string   `json:"source"`
	MemoID       string   `json:"memo_id,omitempty"`
	Pattern      string   `json:"pattern,omitempty"`
}

// MemoType classifies an operator memo.
type MemoType string

const (
	MemoObservation MemoType = "observation"
	MemoEvidence    MemoType = "evidence"
	MemoQuestion    MemoType = "question"
	MemoDecision    MemoType = "decision"
	MemoScore       MemoType = "score"
)

// MemoAnchor ties a memo to utterances or a time range.
type MemoAnchor struct {
	Mode         string   `json:"mode"` // "time" or "utterance"
	TimeRangeMs  []int64  `json:"time_range_ms,omitempty"`
	UtteranceIDs []string `json:"utterance_ids,omitempty"`
}

// Memo is a note written by the operator during the session.
type Memo struct {
	MemoID      string      `json:"memo_id"`
	CreatedAtMs int64       `json:"created_at_ms"`
	Type        MemoType    `json:"type"`
	Tags        []string    `json:"tags,omitempty"`
	Text        string      `json:"text"`
	Anchors     *MemoAnchor `json:"anchors,omitempty"`
}

// Analysis event types.
const (
	EventSupport   = "support"
	EventInterrupt = "interrupt"
	EventSummary   = "summary"
	EventDecision  = "decision"
	EventSilence   = "silence"
)

// AnalysisEvent is a notable interaction moment detected in the transcript.
type AnalysisEvent struct {
	EventID      string   `json:"event_id"`
	Type         string   `json:"type"`
	Actor        string   `json:"actor"`
	Target       string   `json:"target,omitempty"`
	TimeRangeMs  [2]int64 `json:"time_range_ms"`
	UtteranceIDs []string `json:"utterance_ids"`
	Quote        string   `json:"quote,omitempty"`
	Confidence   float64  `json:"confidence"`
	Rationale    string   `json:"rationale,omitempty"`
}
