package evidence

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

var (
	supportCues  = []string{"i agree", "based on", "to add", "building on", "good point", "补充", "我同意", "基于", "支持", "延续"}
	summaryCues  = []string{"let me summarize", "in summary", "to summarize", "总结一下", "我们总结", "小结"}
	decisionCues = []string{"we decide", "decision", "next step", "conclusion", "决定", "结论", "下一步"}
)

// AnalyzeEvents detects support, summary, decision, interrupt and silence events
// and lifts observation and decision memos into events.
func AnalyzeEvents(sessionID string, transcript []models.ReconciledUtterance, memos []models.Memo, stats []models.SpeakerStat) []models.AnalysisEvent {
	items := slices.Clone(transcript)
	slices.SortStableFunc(items, func(a, b models.ReconciledUtterance) int {
		if c := cmp.Compare(a.StartMs, b.StartMs); c != 0 {
			return c
		}
		return cmp.Compare(a.EndMs, b.EndMs)
	})

	var events []models.AnalysisEvent
	idx := 0
	add := func(ev models.AnalysisEvent) {
		idx++
		ev.EventID = fmt.Sprintf("ev_%s_%04d", sessionID, idx)
		if ev.UtteranceIDs == nil {
			ev.UtteranceIDs = []string{}
		}
		events = append(events, ev)
	}
	fromUtterance := func(typ string, u models.ReconciledUtterance, conf float64, rationale string) models.AnalysisEvent {
		return models.AnalysisEvent{
			Type:         typ,
			Actor:        u.SpeakerKey(),
			TimeRangeMs:  [2]int64{u.StartMs, u.EndMs},
			UtteranceIDs: []string{u.ID},
			Quote:        quote(u.Text),
			Confidence:   conf,
			Rationale:    rationale,
		}
	}

	for pos, u := range items {
		if containsAny(u.Text, supportCues) {
			ev := fromUtterance(models.EventSupport, u, 0.72, "supportive cue words detected")
			if pos > 0 {
				if prev := items[pos-1].SpeakerKey(); prev != u.SpeakerKey() {
					ev.Target = prev
				}
			}
			add(ev)
		}
		if containsAny(u.Text, summaryCues) {
			add(fromUtterance(models.EventSummary, u, 0.78, "summary cue words detected"))
		}
		if containsAny(u.Text, decisionCues) {
			add(fromUtterance(models.EventDecision, u, 0.8, "decision cue words detected"))
		}
		if pos > 0 {
			prev := items[pos-1]
			if prev.SpeakerKey() != u.SpeakerKey() &&
				u.StartMs <= prev.EndMs+300 && prev.Duration() >= 1200 {
				ev := fromUtterance(models.EventInterrupt, u, 0.67, "rapid speaker switch near previous turn end")
				ev.Target = prev.SpeakerKey()
				add(ev)
			}
		}
	}

	var totalTalk int64
	for _, st := range stats {
		totalTalk += max(st.TalkTimeMs, 0)
	}
	if totalTalk > 0 {
		for _, st := range stats {
			ratio := float64(st.TalkTimeMs) / float64(totalTalk)
			if ratio < 0.05 && st.Turns <= 2 {
				add(models.AnalysisEvent{
					Type:       models.EventSilence,
					Actor:      st.SpeakerKey,
					Confidence: 0.75,
					Rationale:  "low talk-time ratio and low turns",
				})
			}
		}
	}

	for _, m := range memos {
		if m.Type != models.MemoObservation && m.Type != models.MemoDecision {
			continue
		}
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		ev := models.AnalysisEvent{
			Type:        models.EventSummary,
			Actor:       string(models.StreamTeacher),
			TimeRangeMs: [2]int64{m.CreatedAtMs, m.CreatedAtMs},
			Quote:       quote(m.Text),
			Confidence:  0.82,
			Rationale:   "teacher memo signal",
		}
		if m.Type == models.MemoDecision {
			ev.Type = models.EventDecision
		}
		if a := m.Anchors; a != nil {
			if len(a.TimeRangeMs) == 2 {
				ev.TimeRangeMs = [2]int64{a.TimeRangeMs[0], a.TimeRangeMs[1]}
			}
			ev.UtteranceIDs = slices.Clone(a.UtteranceIDs)
		}
		add(ev)
	}
	return events
}
