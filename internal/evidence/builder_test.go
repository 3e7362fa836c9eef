package evidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

func said(id, speaker, text string, start, end int64) models.ReconciledUtterance {
	return models.ReconciledUtterance{
		Utterance: models.Utterance{
			ID: id, StreamRole: models.StreamStudents, Text: text,
			StartMs: start, EndMs: end, DurationMs: end - start,
		},
		SpeakerName: models.StrPtr(speaker),
		Decision:    models.DecisionAuto,
	}
}

func byType(evs []models.Evidence, typ string) []models.Evidence {
	var out []models.Evidence
	for _, e := range evs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

var transcript = []models.ReconciledUtterance{
	said("u1", "Alice Chen", "I think we should split the budget across marketing and research", 0, 4000),
	said("u2", "Bob", "I agree, research needs the larger share of the budget", 4100, 7000),
	said("u3", "Alice Chen", "ok", 7100, 7400),
	said("u4", "Bob", "I disagree with cutting marketing entirely though", 7500, 9000),
}

func TestBuildMemoSemanticMatch(t *testing.T) {
	b := NewBuilder(Options{})
	evs := b.Build(Input{
		Transcript: transcript,
		Memos: []models.Memo{{
			MemoID: "m1", Type: models.MemoObservation,
			Text: "Alice proposed splitting the budget between marketing and research",
		}},
	})

	require.NotEmpty(t, evs)
	memo := evs[0]
	assert.Equal(t, "e_00001", memo.EvidenceID)
	assert.Equal(t, models.EvidenceQuote, memo.Type)
	assert.Equal(t, models.SourceSemanticMatch, memo.Source)
	assert.Equal(t, "m1", memo.MemoID)
	assert.Equal(t, "u1", memo.UtteranceIDs[0])
	assert.Equal(t, "Alice Chen", memo.SpeakerKey)
	assert.Greater(t, memo.Confidence, MemoTextConfidence)
	assert.LessOrEqual(t, memo.Confidence, MaxSemanticConfidence)
	assert.LessOrEqual(t, len(memo.UtteranceIDs), DefaultOptions().MaxMemoMatches)
}

func TestBuildMemoConfidenceVaries(t *testing.T) {
	b := NewBuilder(Options{})
	evs := b.Build(Input{
		Transcript: transcript,
		Memos: []models.Memo{
			{MemoID: "strong", Text: "Alice: split the budget across marketing and research"},
			{MemoID: "weak", Text: "research share"},
		},
	})
	strong, weak := evs[0], evs[1]
	require.Equal(t, models.SourceSemanticMatch, strong.Source)
	require.Equal(t, models.SourceSemanticMatch, weak.Source)
	assert.NotEqual(t, strong.Confidence, weak.Confidence)
}

func TestBuildMemoWithoutMatch(t *testing.T) {
	b := NewBuilder(Options{})
	evs := b.Build(Input{
		Transcript: transcript,
		Memos:      []models.Memo{{MemoID: "m2", CreatedAtMs: 5000, Text: "Room was noisy today"}},
	})

	memo := evs[0]
	assert.Equal(t, models.SourceMemoText, memo.Source)
	assert.Empty(t, memo.UtteranceIDs)
	assert.Equal(t, MemoTextConfidence, memo.Confidence)
	assert.Equal(t, "Room was noisy today", memo.Quote)
	assert.Equal(t, [2]int64{5000, 5000}, memo.TimeRangeMs)
}

func TestBuildMemoFuzzyName(t *testing.T) {
	evs := NewBuilder(Options{}).Build(Input{
		Transcript: transcript,
		Memos:      []models.Memo{{MemoID: "m3", Text: "Alise made the budget point"}},
	})
	memo := evs[0]
	assert.Equal(t, models.SourceSemanticMatch, memo.Source)
	assert.Equal(t, "u1", memo.UtteranceIDs[0])
	assert.Equal(t, "Alice Chen", memo.SpeakerKey)
}

func TestBuildMemoAnchor(t *testing.T) {
	evs := NewBuilder(Options{}).Build(Input{
		Transcript: transcript,
		Memos: []models.Memo{{
			MemoID:  "m3",
			Text:    "Bob was persuasive",
			Anchors: &models.MemoAnchor{Mode: "utterance", UtteranceIDs: []string{"u4"}},
		}},
	})
	memo := evs[0]
	assert.Equal(t, models.SourceSemanticMatch, memo.Source)
	assert.Equal(t, []string{"u4", "u2"}, memo.UtteranceIDs)
	assert.Equal(t, "Bob", memo.SpeakerKey)
}

func TestBuildSemanticScoresLiftMatch(t *testing.T) {
	b := NewBuilder(Options{})
	memos := []models.Memo{{MemoID: "m4", Text: "strong quantitative instincts"}}

	without := b.Build(Input{Transcript: transcript, Memos: memos})
	assert.Equal(t, models.SourceMemoText, without[0].Source)

	with := b.Build(Input{
		Transcript: transcript,
		Memos:      memos,
		Semantic:   map[string]map[string]float64{"m4": {"u2": 0.9}},
	})
	assert.Equal(t, models.SourceSemanticMatch, with[0].Source)
	assert.Equal(t, []string{"u2"}, with[0].UtteranceIDs)
}

func TestBuildAutoPass(t *testing.T) {
	b := NewBuilder(Options{})
	stats := []models.SpeakerStat{
		{SpeakerKey: "Alice Chen", SpeakerName: "Alice Chen", TalkTimeMs: 4300, TalkTimePct: 0.48, Turns: 2},
		{SpeakerKey: "Bob", SpeakerName: "Bob", TalkTimeMs: 4400, TalkTimePct: 0.49, Turns: 2},
	}
	evs := b.Build(Input{Transcript: transcript, Stats: stats})

	quotes := byType(evs, models.EvidenceTranscriptQuote)
	require.Len(t, quotes, 3, "short utterance u3 is not substantive")
	for _, q := range quotes {
		assert.Equal(t, TranscriptConfidence, q.Confidence)
		assert.Equal(t, models.SourceAutoGenerated, q.Source)
	}

	summaries := byType(evs, models.EvidenceStatsSummary)
	require.Len(t, summaries, 2)
	assert.Equal(t, StatsConfidence, summaries[0].Confidence)
	assert.Equal(t, []string{"u1", "u3"}, summaries[0].UtteranceIDs)
	assert.Equal(t, "Alice Chen: talk time 4.3s (48.0%), 2 turns, 0 interruptions", summaries[0].Quote)

	patterns := byType(evs, models.EvidenceInteractionPattern)
	require.Len(t, patterns, 2)
	assert.Equal(t, "agreement", patterns[0].Pattern)
	assert.Equal(t, []string{"u1", "u2"}, patterns[0].UtteranceIDs)
	assert.Equal(t, "disagreement", patterns[1].Pattern)
	assert.Equal(t, []string{"u3", "u4"}, patterns[1].UtteranceIDs)

	ids := map[string]bool{}
	for _, e := range evs {
		assert.False(t, ids[e.EvidenceID], "duplicate id %s", e.EvidenceID)
		ids[e.EvidenceID] = true
	}
}

func TestTranscriptQuotesSkipNearDuplicates(t *testing.T) {
	b := NewBuilder(Options{})
	line := "We should measure retention before we change the pricing model"
	evs := b.Build(Input{Transcript: []models.ReconciledUtterance{
		said("a", "Alice", line, 0, 3000),
		said("b", "Alice", line, 5000, 8000),
		said("c", "Bob", line, 9000, 12000),
	}})
	quotes := byType(evs, models.EvidenceTranscriptQuote)
	require.Len(t, quotes, 2)
	assert.Equal(t, "Alice", quotes[0].SpeakerKey)
	assert.Equal(t, "Bob", quotes[1].SpeakerKey)
}

func TestTeacherUtterancesAreNotQuoted(t *testing.T) {
	teacher := models.ReconciledUtterance{Utterance: models.Utterance{
		ID: "t1", StreamRole: models.StreamTeacher,
		Text: "Please walk me through how you would approach this problem", StartMs: 0, EndMs: 3000,
	}}
	evs := NewBuilder(Options{}).Build(Input{Transcript: []models.ReconciledUtterance{teacher}})
	assert.Empty(t, byType(evs, models.EvidenceTranscriptQuote))
}

func TestQuoteTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	q := quote(long)
	assert.Len(t, []rune(q), QuoteLimit)
	assert.True(t, strings.HasSuffix(q, "…"))
	assert.Equal(t, "a b", quote("  a \n b "))
}

func TestFuzzyEqual(t *testing.T) {
	assert.True(t, fuzzyEqual("alice", "alice"))
	assert.True(t, fuzzyEqual("alice", "alise"))
	assert.False(t, fuzzyEqual("bob", "rob"), "short tokens need an exact match")
	assert.False(t, fuzzyEqual("alice", "alexa"))
}
