package models

import "time"

// Claim is a single statement in a person section, backed by evidence.
type Claim struct {
	ClaimID      string   `json:"claim_id"`
	Dimension    string   `json:"dimension"`
	Type         string   `json:"type"` // strengths, risks, actions
	Text         string   `json:"text"`
	EvidenceRefs []string `json:"evidence_refs"`
	Confidence   float64  `json:"confidence"`
}

// PersonSection is the report section for one participant.
type PersonSection struct {
	PersonKey   string      `json:"person_key"`
	DisplayName string      `json:"display_name"`
	Summary     string      `json:"summary"`
	Claims      []Claim     `json:"claims"`
	Stats       SpeakerStat `json:"stats"`
}

// Report is the narrative output of a synthesis provider.
type Report struct {
	Summary     string          `json:"summary"`
	Persons     []PersonSection `json:"persons"`
	ModelID     string          `json:"model_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	ElapsedMs   int64           `json:"elapsed_ms"`
}

// ReportContext is everything a synthesizer needs to write a report.
type ReportContext struct {
	SessionID  string                `json:"session_id"`
	Transcript []ReconciledUtterance `json:"transcript"`
	Stats      []SpeakerStat         `json:"stats"`
	Evidence   []Evidence            `json:"evidence"`
	Events     []AnalysisEvent       `json:"events"`
	Memos      []Memo                `json:"memos"`
	Roster     []RosterEntry         `json:"roster"`
	// Interviewers are speaker keys excluded from person sections.
	Interviewers []string `json:"interviewers,omitempty"`
}
