// Package report assembles synthesis input and provides a deterministic,
// offline synthesizer that turns memos and evidence into per-person claims.
package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// NewContext assembles a ReportContext. Speakers heard on the teacher stream
// are recorded as interviewers.
func NewContext(sessionID string, transcript []models.ReconciledUtterance, stats []models.SpeakerStat,
	evidence []models.Evidence, events []models.AnalysisEvent, memos []models.Memo, roster []models.RosterEntry,
) models.ReportContext {
	seen := map[string]bool{string(models.StreamTeacher): true}
	interviewers := []string{string(models.StreamTeacher)}
	for _, u := range transcript {
		if u.StreamRole != models.StreamTeacher {
			continue
		}
		if n := u.Name(); n != "" && !seen[n] {
			seen[n] = true
			interviewers = append(interviewers, n)
		}
	}
	return models.ReportContext{
		SessionID:    sessionID,
		Transcript:   transcript,
		Stats:        stats,
		Evidence:     evidence,
		Events:       events,
		Memos:        memos,
		Roster:       roster,
		Interviewers: interviewers,
	}
}

// MemoMentions returns the speaker keys whose key, name, or roster alias
// appears in any memo text.
func MemoMentions(rc models.ReportContext) map[string]bool {
	nameToKey := make(map[string]string)
	for _, s := range rc.Stats {
		nameToKey[strings.ToLower(s.SpeakerKey)] = s.SpeakerKey
		if s.SpeakerName != "" {
			nameToKey[strings.ToLower(s.SpeakerName)] = s.SpeakerKey
		}
	}
	for _, r := range rc.Roster {
		key, ok := nameToKey[strings.ToLower(r.Name)]
		if !ok {
			continue
		}
		for _, a := range r.Aliases {
			if a = strings.TrimSpace(a); a != "" {
				nameToKey[strings.ToLower(a)] = key
			}
		}
	}

	var all strings.Builder
	for _, m := range rc.Memos {
		all.WriteString(strings.ToLower(m.Text))
		all.WriteByte(' ')
	}
	text := all.String()

	keys := make(map[string]bool)
	for name, key := range nameToKey {
		if strings.Contains(text, name) {
			keys[key] = true
		}
	}
	return keys
}

// Eligible returns the stats of participants worth a report section:
// not an interviewer, named or mentioned in memos, and either heard or mentioned.
func Eligible(rc models.ReportContext) []models.SpeakerStat {
	mentioned := MemoMentions(rc)
	var out []models.SpeakerStat
	for _, s := range rc.Stats {
		if slices.Contains(rc.Interviewers, s.SpeakerKey) || (s.SpeakerName != "" && slices.Contains(rc.Interviewers, s.SpeakerName)) {
			continue
		}
		inMemos := mentioned[s.SpeakerKey]
		if s.SpeakerName == "" && !inMemos {
			continue
		}
		if s.TalkTimeMs > 0 || inMemos {
			out = append(out, s)
		}
	}
	return out
}

// EstimateTokens approximates the token count of text: Han-heavy text counts
// 1.5 per rune, other text 1.3 per word.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	runes, han := 0, 0
	for _, r := range text {
		runes++
		if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	if float64(han) > float64(runes)*0.3 {
		return int(float64(runes) * 1.5)
	}
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// TruncateTranscript trims the transcript to roughly maxTokens. It keeps the
// first utterance of every speaker, then fills the budget from the most recent
// end. The result is ordered by start time; the flag reports whether anything was dropped.
func TruncateTranscript(utts []models.ReconciledUtterance, maxTokens int) ([]models.ReconciledUtterance, bool) {
	total := 0
	for _, u := range utts {
		total += EstimateTokens(u.Text)
	}
	if total <= maxTokens {
		return slices.Clone(utts), false
	}

	sorted := slices.Clone(utts)
	slices.SortStableFunc(sorted, func(a, b models.ReconciledUtterance) int {
		return cmp.Compare(a.StartMs, b.StartMs)
	})

	keep := make(map[string]bool)
	firstOf := make(map[string]bool)
	used := 0
	for _, u := range sorted {
		if k := u.SpeakerKey(); !firstOf[k] {
			firstOf[k] = true
			keep[u.ID] = true
			used += EstimateTokens(u.Text)
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		u := sorted[i]
		if keep[u.ID] {
			continue
		}
		n := EstimateTokens(u.Text)
		if used+n > maxTokens {
			continue
		}
		keep[u.ID] = true
		used += n
	}

	out := make([]models.ReconciledUtterance, 0, len(keep))
	for _, u := range sorted {
		if keep[u.ID] {
			out = append(out, u)
		}
	}
	return out, true
}

// ClaimID builds a stable claim id from its coordinates.
func ClaimID(personKey, dimension, claimType string, index int) string {
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, personKey)
	if safe == "" {
		safe = "unknown"
	}
	return fmt.Sprintf("c_%s_%s_%s_%02d", safe, dimension, claimType, index)
}
