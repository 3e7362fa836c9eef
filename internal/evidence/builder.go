// Package evidence derives report evidence from memos and the reconciled transcript.
package evidence

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// Confidence levels of generated evidence.
const (
	MemoTextConfidence     = 0.35
	MaxSemanticConfidence  = 0.95
	TranscriptConfidence   = 0.85
	StatsConfidence        = 0.95
	AgreementConfidence    = 0.70
	DisagreementConfidence = 0.65
)

const (
	nameWeight    = 0.4
	overlapWeight = 0.6
	anchorBonus   = 0.3
)

var agreementMarkers = []string{
	"i agree", "good point", "exactly", "that's right", "building on", "to add", "same here",
	"我同意", "补充", "没错",
}

var disagreementMarkers = []string{
	"i disagree", "i don't agree", "i don't think", "not sure that", "on the contrary",
	"i'm not convinced", "that's not",
	"我不同意", "不太同意", "我觉得不对",
}

// Options tunes the builder.
type Options struct {
	// MinMatchScore is the lowest memo-to-utterance score counted as a match.
	MinMatchScore float64
	// MaxMemoMatches caps the utterances linked from one memo.
	MaxMemoMatches int
	// MinQuoteWords and MinQuoteRunes define a substantive utterance.
	MinQuoteWords int
	MinQuoteRunes int
	// DuplicateDistance is the SimHash distance under which quotes of the same
	// speaker are treated as repeats.
	DuplicateDistance int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		MinMatchScore:     0.3,
		MaxMemoMatches:    3,
		MinQuoteWords:     4,
		MinQuoteRunes:     20,
		DuplicateDistance: 3,
	}
}

// Input is the material evidence is built from.
type Input struct {
	Transcript []models.ReconciledUtterance
	Stats      []models.SpeakerStat
	Memos      []models.Memo
	Roster     []models.RosterEntry
	// Semantic optionally holds memo id -> utterance id -> similarity in [0,1].
	Semantic map[string]map[string]float64
}

// Builder assembles evidence lists.
type Builder struct {
	opts Options
}

// NewBuilder creates a builder. Zero fields of opts take their defaults.
func NewBuilder(opts Options) *Builder {
	def := DefaultOptions()
	if opts.MinMatchScore <= 0 {
		opts.MinMatchScore = def.MinMatchScore
	}
	if opts.MaxMemoMatches <= 0 {
		opts.MaxMemoMatches = def.MaxMemoMatches
	}
	if opts.MinQuoteWords <= 0 {
		opts.MinQuoteWords = def.MinQuoteWords
	}
	if opts.MinQuoteRunes <= 0 {
		opts.MinQuoteRunes = def.MinQuoteRunes
	}
	if opts.DuplicateDistance <= 0 {
		opts.DuplicateDistance = def.DuplicateDistance
	}
	return &Builder{opts: opts}
}

type idSeq int

func (s *idSeq) next() string {
	*s++
	return fmt.Sprintf("e_%05d", int(*s))
}

// Build runs the memo pass and then the automatic pass.
func (b *Builder) Build(in Input) []models.Evidence {
	var seq idSeq
	out := b.fromMemos(in, &seq)
	return append(out, b.auto(in, &seq)...)
}

type scored struct {
	u     models.ReconciledUtterance
	score float64
}

// fromMemos links every memo to the utterances it talks about. A memo without a
// match still yields one memo_text entry.
func (b *Builder) fromMemos(in Input, seq *idSeq) []models.Evidence {
	if seq == nil {
		seq = new(idSeq)
	}
	aliases := nameAliases(in.Transcript, in.Roster)

	var out []models.Evidence
	for _, memo := range in.Memos {
		if strings.TrimSpace(memo.Text) == "" {
			continue
		}
		mentioned := mentionedNames(memo.Text, aliases)
		memoKeys := keywords(memo.Text)

		var candidates []scored
		for _, u := range in.Transcript {
			if u.StreamRole == models.StreamTeacher {
				continue
			}
			s := b.score(memo, u, mentioned, memoKeys, in.Semantic[memo.MemoID][u.ID])
			if s >= b.opts.MinMatchScore {
				candidates = append(candidates, scored{u: u, score: s})
			}
		}

		if len(candidates) == 0 {
			out = append(out, memoOnly(memo, mentioned, seq.next()))
			continue
		}

		slices.SortStableFunc(candidates, func(x, y scored) int {
			if c := cmp.Compare(y.score, x.score); c != 0 {
				return c
			}
			return cmp.Compare(x.u.StartMs, y.u.StartMs)
		})
		if len(candidates) > b.opts.MaxMemoMatches {
			candidates = candidates[:b.opts.MaxMemoMatches]
		}

		top := candidates[0]
		ids := make([]string, len(candidates))
		lo, hi := top.u.StartMs, top.u.EndMs
		for i, c := range candidates {
			ids[i] = c.u.ID
			lo = min(lo, c.u.StartMs)
			hi = max(hi, c.u.EndMs)
		}
		out = append(out, models.Evidence{
			EvidenceID:   seq.next(),
			Type:         models.EvidenceQuote,
			UtteranceIDs: ids,
			SpeakerKey:   top.u.SpeakerKey(),
			Quote:        quote(top.u.Text),
			TimeRangeMs:  [2]int64{lo, hi},
			Confidence:   semanticConfidence(top.score),
			Source:       models.SourceSemanticMatch,
			MemoID:       memo.MemoID,
		})
	}
	return out
}

func (b *Builder) score(memo models.Memo, u models.ReconciledUtterance, mentioned map[string]string, memoKeys map[string]bool, semantic float64) float64 {
	var s float64
	if _, ok := mentioned[strings.ToLower(u.Name())]; ok {
		s += nameWeight
	}
	lexical := overlapRatio(memoKeys, keywords(u.Text))
	s += overlapWeight * math.Max(lexical, semantic)
	if anchored(memo, u) {
		s += anchorBonus
	}
	return math.Min(1, s)
}

func anchored(memo models.Memo, u models.ReconciledUtterance) bool {
	a := memo.Anchors
	if a == nil {
		return false
	}
	if slices.Contains(a.UtteranceIDs, u.ID) {
		return true
	}
	if len(a.TimeRangeMs) == 2 {
		return models.Overlap(a.TimeRangeMs[0], a.TimeRangeMs[1], u.StartMs, u.EndMs) > 0
	}
	return false
}

// semanticConfidence maps a match score in [0,1] onto [0.35, 0.95].
func semanticConfidence(score float64) float64 {
	c := MemoTextConfidence + 0.6*math.Max(0, math.Min(1, score))
	return math.Round(math.Min(MaxSemanticConfidence, c)*1000) / 1000
}

func memoOnly(memo models.Memo, mentioned map[string]string, id string) models.Evidence {
	ev := models.Evidence{
		EvidenceID:   id,
		Type:         models.EvidenceQuote,
		UtteranceIDs: []string{},
		Quote:        quote(memo.Text),
		TimeRangeMs:  [2]int64{memo.CreatedAtMs, memo.CreatedAtMs},
		Confidence:   MemoTextConfidence,
		Source:       models.SourceMemoText,
		MemoID:       memo.MemoID,
	}
	if a := memo.Anchors; a != nil && len(a.TimeRangeMs) == 2 {
		ev.TimeRangeMs = [2]int64{a.TimeRangeMs[0], a.TimeRangeMs[1]}
	}
	if len(mentioned) > 0 {
		keys := slices.Sorted(maps.Keys(mentioned))
		ev.SpeakerKey = mentioned[keys[0]]
	}
	return ev
}

// auto emits transcript quotes, one stats summary per speaker, and interaction
// patterns.
func (b *Builder) auto(in Input, seq *idSeq) []models.Evidence {
	if seq == nil {
		seq = new(idSeq)
	}
	var out []models.Evidence
	out = append(out, b.transcriptQuotes(in.Transcript, seq)...)
	out = append(out, statsSummaries(in.Stats, in.Transcript, seq)...)
	out = append(out, interactionPatterns(in.Transcript, seq)...)
	return out
}

func (b *Builder) substantive(text string) bool {
	runes := []rune(strings.TrimSpace(text))
	han := 0
	for _, r := range runes {
		if isHan(r) {
			han++
		}
	}
	if han*2 >= len(runes) && len(runes) > 0 {
		// Unsegmented text: length alone decides.
		return len(runes) >= b.opts.MinQuoteRunes/2
	}
	return len(strings.Fields(text)) >= b.opts.MinQuoteWords && len(runes) >= b.opts.MinQuoteRunes
}

func (b *Builder) transcriptQuotes(transcript []models.ReconciledUtterance, seq *idSeq) []models.Evidence {
	seen := make(map[string][]uint64)
	var out []models.Evidence
	for _, u := range transcript {
		if u.StreamRole == models.StreamTeacher || !b.substantive(u.Text) {
			continue
		}
		key := u.SpeakerKey()
		fp := fingerprint(u.Text)
		if slices.ContainsFunc(seen[key], func(other uint64) bool {
			return hamming(fp, other) <= b.opts.DuplicateDistance
		}) {
			continue
		}
		seen[key] = append(seen[key], fp)
		out = append(out, models.Evidence{
			EvidenceID:   seq.next(),
			Type:         models.EvidenceTranscriptQuote,
			UtteranceIDs: []string{u.ID},
			SpeakerKey:   key,
			Quote:        quote(u.Text),
			TimeRangeMs:  [2]int64{u.StartMs, u.EndMs},
			Confidence:   TranscriptConfidence,
			Source:       models.SourceAutoGenerated,
		})
	}
	return out
}

func statsSummaries(stats []models.SpeakerStat, transcript []models.ReconciledUtterance, seq *idSeq) []models.Evidence {
	var out []models.Evidence
	for _, st := range stats {
		ids := []string{}
		var lo, hi int64 = -1, 0
		for _, u := range transcript {
			if u.SpeakerKey() != st.SpeakerKey {
				continue
			}
			ids = append(ids, u.ID)
			if lo < 0 || u.StartMs < lo {
				lo = u.StartMs
			}
			hi = max(hi, u.EndMs)
		}
		lo = max(lo, 0)
		name := st.SpeakerName
		if name == "" {
			name = st.SpeakerKey
		}
		out = append(out, models.Evidence{
			EvidenceID:   seq.next(),
			Type:         models.EvidenceStatsSummary,
			UtteranceIDs: ids,
			SpeakerKey:   st.SpeakerKey,
			Quote: fmt.Sprintf("%s: talk time %s (%.1f%%), %d turns, %d interruptions",
				name, (time.Duration(st.TalkTimeMs) * time.Millisecond).String(), st.TalkTimePct*100, st.Turns, st.Interruptions),
			TimeRangeMs: [2]int64{lo, hi},
			Confidence:  StatsConfidence,
			Source:      models.SourceAutoGenerated,
		})
	}
	return out
}

func containsAny(text string, markers []string) bool {
	lowered := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

func interactionPatterns(transcript []models.ReconciledUtterance, seq *idSeq) []models.Evidence {
	var out []models.Evidence
	for i, u := range transcript {
		pattern, conf := "", 0.0
		switch {
		case containsAny(u.Text, disagreementMarkers):
			pattern, conf = "disagreement", DisagreementConfidence
		case containsAny(u.Text, agreementMarkers):
			pattern, conf = "agreement", AgreementConfidence
		default:
			continue
		}

		key := u.SpeakerKey()
		ids := []string{u.ID}
		lo := u.StartMs
		for j := i - 1; j >= 0; j-- {
			if prev := transcript[j]; prev.SpeakerKey() != key {
				ids = []string{prev.ID, u.ID}
				lo = prev.StartMs
				break
			}
		}
		out = append(out, models.Evidence{
			EvidenceID:   seq.next(),
			Type:         models.EvidenceInteractionPattern,
			UtteranceIDs: ids,
			SpeakerKey:   key,
			Quote:        quote(u.Text),
			TimeRangeMs:  [2]int64{lo, u.EndMs},
			Confidence:   conf,
			Source:       models.SourceAutoGenerated,
			Pattern:      pattern,
		})
	}
	return out
}
