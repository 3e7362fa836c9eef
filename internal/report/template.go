package report

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/provider"
)

// Claim types.
const (
	ClaimStrengths = "strengths"
	ClaimRisks     = "risks"
	ClaimActions   = "actions"
)

// ClaimTypes lists the claim buckets in report order.
var ClaimTypes = []string{ClaimStrengths, ClaimRisks, ClaimActions}

// Dimensions are the assessment axes every person section covers.
var Dimensions = []string{"leadership", "collaboration", "logic", "structure", "initiative"}

var dimensionKeywords = map[string][]string{
	"leadership":    {"leadership", "leader", "主导", "推动", "带领", "组织", "决策"},
	"collaboration": {"collaboration", "协作", "配合", "support", "倾听", "补充", "互动"},
	"logic":         {"logic", "logical", "推理", "论证", "依据", "分析", "reason"},
	"structure":     {"structure", "结构", "框架", "步骤", "拆解", "总结"},
	"initiative":    {"initiative", "主动", "推进", "提议", "行动", "next step"},
}

// TemplateModelID identifies reports written by TemplateSynthesizer.
const TemplateModelID = "template"

// ErrNoEvidence is returned when a person section cannot cite any evidence.
var ErrNoEvidence = errors.New("no evidence to cite")

// ErrNoParticipants is returned when the context has nobody to report on.
var ErrNoParticipants = errors.New("no eligible participants")

// TemplateSynthesizer writes reports without a language model. Memos become
// claims for the speakers their evidence points at; every dimension and claim
// type is then filled with a stats-derived statement.
type TemplateSynthesizer struct {
	now func() time.Time
}

var _ provider.Synthesizer = (*TemplateSynthesizer)(nil)

// NewTemplateSynthesizer creates a TemplateSynthesizer.
func NewTemplateSynthesizer() *TemplateSynthesizer {
	return &TemplateSynthesizer{now: time.Now}
}

type index struct {
	aliases      map[string]string
	byID         map[string]models.Evidence
	byUtterance  map[string][]string
	byPerson     map[string][]string
	allRefs      []string
	evidence     []models.Evidence
	participants []models.SpeakerStat
}

func newIndex(rc models.ReportContext) (*index, error) {
	participants := Eligible(rc)
	if len(participants) == 0 {
		for _, s := range rc.Stats {
			if !slices.Contains(rc.Interviewers, s.SpeakerKey) {
				participants = append(participants, s)
			}
		}
	}
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}

	ix := &index{
		aliases:      make(map[string]string),
		byID:         make(map[string]models.Evidence, len(rc.Evidence)),
		byUtterance:  make(map[string][]string),
		byPerson:     make(map[string][]string),
		evidence:     rc.Evidence,
		participants: participants,
	}
	for _, s := range participants {
		ix.aliases[strings.ToLower(s.SpeakerKey)] = s.SpeakerKey
		if s.SpeakerName != "" {
			ix.aliases[strings.ToLower(s.SpeakerName)] = s.SpeakerKey
		}
	}
	for _, e := range rc.Evidence {
		ix.byID[e.EvidenceID] = e
		ix.allRefs = append(ix.allRefs, e.EvidenceID)
		for _, uid := range e.UtteranceIDs {
			ix.byUtterance[uid] = append(ix.byUtterance[uid], e.EvidenceID)
		}
		if key, ok := ix.aliases[strings.ToLower(strings.TrimSpace(e.SpeakerKey))]; ok {
			ix.byPerson[key] = append(ix.byPerson[key], e.EvidenceID)
		}
	}
	return ix, nil
}

func (ix *index) fallbackRefs(personKey string) []string {
	if refs := ix.byPerson[personKey]; len(refs) > 0 {
		return slices.Clone(refs[:min(2, len(refs))])
	}
	return slices.Clone(ix.allRefs[:min(2, len(ix.allRefs))])
}

func (ix *index) memoRefs(m models.Memo) []string {
	var refs []string
	if m.Anchors != nil {
		switch {
		case m.Anchors.Mode == "utterance":
			for _, uid := range m.Anchors.UtteranceIDs {
				refs = append(refs, ix.byUtterance[uid]...)
			}
		case m.Anchors.Mode == "time" && len(m.Anchors.TimeRangeMs) >= 2:
			for _, e := range ix.evidence {
				if models.Overlap(m.Anchors.TimeRangeMs[0], m.Anchors.TimeRangeMs[1], e.TimeRangeMs[0], e.TimeRangeMs[1]) > 0 {
					refs = append(refs, e.EvidenceID)
				}
			}
		}
	}
	// Evidence built from this memo also counts.
	for _, e := range ix.evidence {
		if e.MemoID != "" && e.MemoID == m.MemoID {
			refs = append(refs, e.EvidenceID)
		}
	}
	return dedupe(refs)
}

func (ix *index) speakersOf(refs []string) []string {
	var out []string
	for _, ref := range refs {
		e, ok := ix.byID[ref]
		if !ok || e.SpeakerKey == "" {
			continue
		}
		key, ok := ix.aliases[strings.ToLower(strings.TrimSpace(e.SpeakerKey))]
		if ok && !slices.Contains(out, key) {
			out = append(out, key)
		}
	}
	return out
}

func dedupe(refs []string) []string {
	seen := make(map[string]bool, len(refs))
	out := refs[:0]
	for _, r := range refs {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// DimensionOf picks the dimension a memo speaks to from its tags and text,
// falling back on the memo type.
func DimensionOf(m models.Memo) string {
	signal := strings.ToLower(strings.Join(m.Tags, " ") + " " + strings.Join(strings.Fields(m.Text), " "))
	for _, dim := range Dimensions {
		for _, kw := range dimensionKeywords[dim] {
			if strings.Contains(signal, kw) {
				return dim
			}
		}
	}
	switch m.Type {
	case models.MemoQuestion:
		return "logic"
	case models.MemoDecision:
		return "structure"
	case models.MemoScore:
		return "initiative"
	}
	return "collaboration"
}

// ClaimTypeOf maps a memo type onto a claim bucket.
func ClaimTypeOf(m models.Memo) string {
	switch m.Type {
	case models.MemoQuestion:
		return ClaimRisks
	case models.MemoDecision, models.MemoScore:
		return ClaimActions
	}
	return ClaimStrengths
}

func claimConfidence(claimType string) float64 {
	if claimType == ClaimStrengths {
		return 0.8
	}
	return 0.72
}

// templateText writes a stats-derived statement for a dimension and claim type.
func templateText(dimension, claimType string, s models.SpeakerStat) string {
	switch claimType {
	case ClaimStrengths:
		if s.Turns >= 4 {
			return fmt.Sprintf("Steady %s: participation and turn count met expectations.", dimension)
		}
		return fmt.Sprintf("Shows a foundation in %s but needs more consistent contributions.", dimension)
	case ClaimRisks:
		if s.Interruptions >= 3 {
			return fmt.Sprintf("Frequent interruptions weaken %s and disrupt the group's rhythm.", dimension)
		}
		if s.TalkTimeMs <= 20_000 {
			return fmt.Sprintf("Limited speaking time left key %s points underexpressed.", dimension)
		}
		return fmt.Sprintf("Room to improve %s under pressure.", dimension)
	}
	return fmt.Sprintf("Next session, close %s discussions with a concrete, actionable conclusion.", dimension)
}

// SynthesizeReport implements provider.Synthesizer.
func (t *TemplateSynthesizer) SynthesizeReport(ctx context.Context, rc models.ReportContext) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := t.now()
	ix, err := newIndex(rc)
	if err != nil {
		return nil, err
	}

	claims := make(map[string]map[string]map[string][]models.Claim, len(ix.participants))
	for _, p := range ix.participants {
		claims[p.SpeakerKey] = make(map[string]map[string][]models.Claim, len(Dimensions))
		for _, d := range Dimensions {
			claims[p.SpeakerKey][d] = make(map[string][]models.Claim, len(ClaimTypes))
		}
	}

	for _, m := range rc.Memos {
		text := strings.Join(strings.Fields(m.Text), " ")
		if text == "" {
			continue
		}
		refs := ix.memoRefs(m)
		speakers := ix.speakersOf(refs)
		if len(speakers) == 0 && len(ix.participants) == 1 {
			speakers = []string{ix.participants[0].SpeakerKey}
		}
		dim, ct := DimensionOf(m), ClaimTypeOf(m)
		for _, key := range speakers {
			claimRefs := refs[:min(2, len(refs))]
			if len(claimRefs) == 0 {
				claimRefs = ix.fallbackRefs(key)
			}
			if len(claimRefs) == 0 {
				continue
			}
			rows := claims[key][dim][ct]
			claims[key][dim][ct] = append(rows, models.Claim{
				ClaimID:      ClaimID(key, dim, ct, len(rows)+1),
				Dimension:    dim,
				Type:         ct,
				Text:         text,
				EvidenceRefs: slices.Clone(claimRefs),
				Confidence:   claimConfidence(ct),
			})
		}
	}

	report := &models.Report{ModelID: TemplateModelID}
	for _, p := range ix.participants {
		fallback := ix.fallbackRefs(p.SpeakerKey)
		if len(fallback) == 0 {
			return nil, fmt.Errorf("person %q: %w", p.SpeakerKey, ErrNoEvidence)
		}
		section := models.PersonSection{
			PersonKey:   p.SpeakerKey,
			DisplayName: cmp.Or(p.SpeakerName, p.SpeakerKey),
			Stats:       p,
		}
		firsts := map[string]string{}
		for _, d := range Dimensions {
			for _, ct := range ClaimTypes {
				rows := claims[p.SpeakerKey][d][ct]
				if len(rows) == 0 {
					rows = []models.Claim{{
						ClaimID:      ClaimID(p.SpeakerKey, d, ct, 1),
						Dimension:    d,
						Type:         ct,
						Text:         templateText(d, ct, p),
						EvidenceRefs: slices.Clone(fallback),
						Confidence:   claimConfidence(ct),
					}}
				}
				if _, ok := firsts[ct]; !ok {
					firsts[ct] = rows[0].Text
				}
				section.Claims = append(section.Claims, rows...)
			}
		}
		section.Summary = strings.Join([]string{firsts[ClaimStrengths], firsts[ClaimRisks], firsts[ClaimActions]}, " ")
		report.Persons = append(report.Persons, section)
	}

	report.Summary = overallSummary(rc)
	report.GeneratedAt = t.now().UTC()
	report.ElapsedMs = report.GeneratedAt.Sub(start.UTC()).Milliseconds()
	return report, nil
}

func overallSummary(rc models.ReportContext) string {
	var lines []string
	memos := rc.Memos[max(0, len(rc.Memos)-8):]
	for _, m := range memos {
		if text := strings.Join(strings.Fields(m.Text), " "); text != "" {
			lines = append(lines, "- "+text)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, "- No memos were recorded; review the evidence to add key observations.")
	}
	lines = lines[:min(6, len(lines))]

	var events []string
	for _, ev := range rc.Events[max(0, len(rc.Events)-6):] {
		actor := cmp.Or(ev.Actor, "participant")
		if q := strings.Join(strings.Fields(ev.Quote), " "); q != "" {
			events = append(events, fmt.Sprintf("- %s: %s", actor, q))
		} else {
			events = append(events, fmt.Sprintf("- %s: %s", actor, ev.Type))
		}
	}
	if len(events) == 0 {
		events = append(events, "- No notable interaction events were detected.")
	}

	return "Memos:\n" + strings.Join(lines, "\n") + "\n\nInteraction events:\n" + strings.Join(events, "\n")
}

// RegenerateClaim rewrites a claim from the current stats, keeping only
// evidence refs that still exist.
func (t *TemplateSynthesizer) RegenerateClaim(ctx context.Context, claim models.Claim, rc models.ReportContext) (*models.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	personKey, ok := personOf(claim.ClaimID, rc.Stats)
	if !ok {
		return nil, fmt.Errorf("regenerate claim %s: unknown person", claim.ClaimID)
	}
	var stat models.SpeakerStat
	for _, s := range rc.Stats {
		if s.SpeakerKey == personKey {
			stat = s
		}
	}

	valid := make(map[string]bool, len(rc.Evidence))
	for _, e := range rc.Evidence {
		valid[e.EvidenceID] = true
	}
	var refs []string
	for _, r := range claim.EvidenceRefs {
		if valid[r] {
			refs = append(refs, r)
		}
	}
	if len(refs) == 0 {
		ix, err := newIndex(rc)
		if err != nil {
			return nil, fmt.Errorf("regenerate claim %s: %w", claim.ClaimID, err)
		}
		refs = ix.fallbackRefs(personKey)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("regenerate claim %s: %w", claim.ClaimID, ErrNoEvidence)
	}

	out := claim
	out.Text = templateText(claim.Dimension, claim.Type, stat)
	out.EvidenceRefs = refs
	out.Confidence = claimConfidence(claim.Type)
	return &out, nil
}

// personOf recovers the person key from a claim id by matching known keys.
func personOf(claimID string, stats []models.SpeakerStat) (string, bool) {
	best := ""
	for _, s := range stats {
		prefix := strings.TrimSuffix(ClaimID(s.SpeakerKey, "", "", 0), "___00")
		if strings.HasPrefix(claimID, prefix+"_") && len(s.SpeakerKey) > len(best) {
			best = s.SpeakerKey
		}
	}
	return best, best != ""
}
