package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/provider"
	"github.com/raphaelgruber/voxrecon/internal/report"
)

// DefaultTranscriptTokens bounds the transcript included in a synthesis prompt.
const DefaultTranscriptTokens = 6000

// ErrInvalidOutput is returned when the model's reply cannot be used.
var ErrInvalidOutput = errors.New("invalid model output")

// generator is the part of Model the synthesizer needs.
type generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts ...llms.CallOption) (string, error)
	Model() string
}

// Synthesizer writes reports with a language model.
type Synthesizer struct {
	model     generator
	maxTokens int
	logger    *slog.Logger
	now       func() time.Time
}

var _ provider.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer creates a Synthesizer over model.
func NewSynthesizer(model *Model, logger *slog.Logger) *Synthesizer {
	return newSynthesizer(model, logger)
}

func newSynthesizer(g generator, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{model: g, maxTokens: DefaultTranscriptTokens, logger: logger, now: time.Now}
}

const reportSystemPrompt = `You are an expert discussion analyst writing structured feedback on each participant.

Rules:
1. Every claim MUST cite 1-5 evidence_id values from the evidence list. Never invent ids.
2. Only write sections for the people listed in "participants". Interviewers are never evaluated.
3. Treat teacher memos as first-class evidence and cross-check them against the transcript.
4. Use dimensions from: %s. Claim type is one of strengths, risks, actions.
5. Give at least one strength and one risk per participant.
6. Claims based on a single piece of evidence get confidence below 0.4.
7. Claim text is plain language; put ids only in evidence_refs.

Reply with JSON only:
{"summary": string, "persons": [{"person_key": string, "display_name": string, "summary": string,
 "claims": [{"dimension": string, "type": string, "text": string, "evidence_refs": [string], "confidence": number}]}]}`

type promptUtterance struct {
	ID      string `json:"id"`
	Speaker string `json:"speaker"`
	Stream  string `json:"stream"`
	StartMs int64  `json:"start_ms"`
	Text    string `json:"text"`
}

type promptEvidence struct {
	ID         string  `json:"evidence_id"`
	Type       string  `json:"type"`
	SpeakerKey string  `json:"speaker_key,omitempty"`
	Quote      string  `json:"quote"`
	Confidence float64 `json:"confidence"`
}

type promptData struct {
	SessionID    string                 `json:"session_id"`
	Participants []models.SpeakerStat   `json:"participants"`
	Transcript   []promptUtterance      `json:"transcript"`
	Evidence     []promptEvidence       `json:"evidence"`
	Memos        []models.Memo          `json:"memos,omitempty"`
	Events       []models.AnalysisEvent `json:"events,omitempty"`
	Truncated    bool                   `json:"transcript_truncated,omitempty"`
}

func (s *Synthesizer) userPrompt(rc models.ReportContext, participants []models.SpeakerStat) (string, bool, error) {
	transcript, truncated := report.TruncateTranscript(rc.Transcript, s.maxTokens)
	data := promptData{
		SessionID:    rc.SessionID,
		Participants: participants,
		Memos:        rc.Memos,
		Events:       rc.Events,
		Truncated:    truncated,
	}
	for _, u := range transcript {
		data.Transcript = append(data.Transcript, promptUtterance{
			ID: u.ID, Speaker: u.SpeakerKey(), Stream: string(u.StreamRole), StartMs: u.StartMs, Text: u.Text,
		})
	}
	for _, e := range rc.Evidence {
		data.Evidence = append(data.Evidence, promptEvidence{
			ID: e.EvidenceID, Type: e.Type, SpeakerKey: e.SpeakerKey, Quote: e.Quote, Confidence: e.Confidence,
		})
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", false, fmt.Errorf("marshal prompt: %w", err)
	}
	return string(b), truncated, nil
}

type claimOut struct {
	Dimension    string   `json:"dimension"`
	Type         string   `json:"type"`
	Text         string   `json:"text"`
	EvidenceRefs []string `json:"evidence_refs"`
	Confidence   float64  `json:"confidence"`
}

type personOut struct {
	PersonKey   string     `json:"person_key"`
	DisplayName string     `json:"display_name"`
	Summary     string     `json:"summary"`
	Claims      []claimOut `json:"claims"`
}

type reportOut struct {
	Summary string      `json:"summary"`
	Persons []personOut `json:"persons"`
}

// SynthesizeReport implements provider.Synthesizer. Claims citing unknown
// evidence lose those refs; claims left without refs and sections for people
// outside the eligible set are dropped.
func (s *Synthesizer) SynthesizeReport(ctx context.Context, rc models.ReportContext) (*models.Report, error) {
	start := s.now()
	participants := report.Eligible(rc)
	if len(participants) == 0 {
		return nil, report.ErrNoParticipants
	}

	user, truncated, err := s.userPrompt(rc, participants)
	if err != nil {
		return nil, err
	}
	system := fmt.Sprintf(reportSystemPrompt, strings.Join(report.Dimensions, ", "))

	raw, err := s.model.GenerateWithSystem(ctx, system, user, llms.WithJSONMode(), llms.WithTemperature(0.2))
	if err != nil {
		return nil, fmt.Errorf("synthesize report: %w", err)
	}

	var out reportOut
	if err := decodeJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("synthesize report: %w", err)
	}

	valid := make(map[string]bool, len(rc.Evidence))
	for _, e := range rc.Evidence {
		valid[e.EvidenceID] = true
	}
	eligible := make(map[string]models.SpeakerStat, len(participants))
	for _, p := range participants {
		eligible[p.SpeakerKey] = p
	}

	rep := &models.Report{Summary: strings.TrimSpace(out.Summary), ModelID: s.model.Model()}
	dropped := 0
	for _, p := range out.Persons {
		stat, ok := eligible[p.PersonKey]
		if !ok {
			dropped++
			continue
		}
		section := models.PersonSection{
			PersonKey:   p.PersonKey,
			DisplayName: p.DisplayName,
			Summary:     strings.TrimSpace(p.Summary),
			Stats:       stat,
		}
		if section.DisplayName == "" {
			section.DisplayName = p.PersonKey
		}
		counts := make(map[string]int)
		for _, c := range p.Claims {
			claim, ok := sanitizeClaim(c, valid)
			if !ok {
				dropped++
				continue
			}
			counts[claim.Dimension+"/"+claim.Type]++
			claim.ClaimID = report.ClaimID(p.PersonKey, claim.Dimension, claim.Type, counts[claim.Dimension+"/"+claim.Type])
			section.Claims = append(section.Claims, claim)
		}
		rep.Persons = append(rep.Persons, section)
	}
	if len(rep.Persons) == 0 {
		return nil, fmt.Errorf("synthesize report: %w: no eligible persons", ErrInvalidOutput)
	}

	rep.GeneratedAt = s.now().UTC()
	rep.ElapsedMs = s.now().Sub(start).Milliseconds()
	s.logger.Info("report synthesized",
		"session_id", rc.SessionID,
		"model", rep.ModelID,
		"persons", len(rep.Persons),
		"dropped", dropped,
		"transcript_truncated", truncated,
		"elapsed_ms", rep.ElapsedMs)
	return rep, nil
}

func sanitizeClaim(c claimOut, valid map[string]bool) (models.Claim, bool) {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return models.Claim{}, false
	}
	dim := strings.ToLower(strings.TrimSpace(c.Dimension))
	if !slices.Contains(report.Dimensions, dim) {
		return models.Claim{}, false
	}
	typ := strings.ToLower(strings.TrimSpace(c.Type))
	if !slices.Contains(report.ClaimTypes, typ) {
		return models.Claim{}, false
	}
	var refs []string
	for _, r := range c.EvidenceRefs {
		if valid[r] && !slices.Contains(refs, r) {
			refs = append(refs, r)
		}
	}
	if len(refs) == 0 {
		return models.Claim{}, false
	}
	return models.Claim{
		Dimension:    dim,
		Type:         typ,
		Text:         text,
		EvidenceRefs: refs[:min(5, len(refs))],
		Confidence:   min(max(c.Confidence, 0), 1),
	}, true
}

const claimSystemPrompt = `You rewrite one feedback claim about a discussion participant.
Keep the same dimension and type. Cite only evidence_id values from the evidence list.
Reply with JSON only: {"text": string, "evidence_refs": [string], "confidence": number}`

// RegenerateClaim implements provider.Synthesizer.
func (s *Synthesizer) RegenerateClaim(ctx context.Context, claim models.Claim, rc models.ReportContext) (*models.Claim, error) {
	var ev []promptEvidence
	valid := make(map[string]bool, len(rc.Evidence))
	for _, e := range rc.Evidence {
		valid[e.EvidenceID] = true
		ev = append(ev, promptEvidence{ID: e.EvidenceID, Type: e.Type, SpeakerKey: e.SpeakerKey, Quote: e.Quote, Confidence: e.Confidence})
	}
	user, err := json.Marshal(map[string]any{"claim": claim, "evidence": ev, "memos": rc.Memos})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	raw, err := s.model.GenerateWithSystem(ctx, claimSystemPrompt, string(user), llms.WithJSONMode(), llms.WithTemperature(0.2))
	if err != nil {
		return nil, fmt.Errorf("regenerate claim %s: %w", claim.ClaimID, err)
	}
	var out claimOut
	if err := decodeJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("regenerate claim %s: %w", claim.ClaimID, err)
	}
	out.Dimension, out.Type = claim.Dimension, claim.Type

	regenerated, ok := sanitizeClaim(out, valid)
	if !ok {
		return nil, fmt.Errorf("regenerate claim %s: %w", claim.ClaimID, ErrInvalidOutput)
	}
	regenerated.ClaimID = claim.ClaimID
	return &regenerated, nil
}

// decodeJSON extracts the outermost JSON object from a model reply, which may
// be wrapped in prose or a code fence.
func decodeJSON(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object", ErrInvalidOutput)
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	return nil
}
