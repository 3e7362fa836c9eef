package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
	"github.com/raphaelgruber/voxrecon/internal/models"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func utt(id string, role models.StreamRole, start, end int64) models.Utterance {
	return models.Utterance{ID: id, StreamRole: role, Text: "text " + id, StartMs: start, EndMs: end, DurationMs: end - start}
}

func single(t *testing.T, in Input) models.ReconciledUtterance {
	t.Helper()
	out := Reconcile(in)
	require.Len(t, out, 1)
	return out[0]
}

func TestReconcileTeacher(t *testing.T) {
	u := utt("t1", models.StreamTeacher, 0, 1000)

	t.Run("event name with default decision", func(t *testing.T) {
		got := single(t, Input{
			Utterances: []models.Utterance{u},
			Events:     []models.SpeakerEvent{{StreamRole: models.StreamTeacher, UtteranceID: "t1", SpeakerName: "Ms. Lee"}},
		})
		assert.Equal(t, "Ms. Lee", got.Name())
		assert.Equal(t, models.DecisionConfirm, got.Decision)
		assert.Equal(t, ResolutionTeacherEvent, got.Resolution)
	})

	t.Run("event decision kept", func(t *testing.T) {
		got := single(t, Input{
			Utterances: []models.Utterance{u},
			Events: []models.SpeakerEvent{{StreamRole: models.StreamTeacher, UtteranceID: "t1",
				SpeakerName: "Ms. Lee", Decision: models.DecisionAuto}},
		})
		assert.Equal(t, models.DecisionAuto, got.Decision)
	})

	nameless := []struct {
		name     string
		decision models.Decision
		want     models.Decision
	}{
		{"nameless event defaults to confirm", "", models.DecisionConfirm},
		{"nameless event explicit confirm", models.DecisionConfirm, models.DecisionConfirm},
		{"nameless event explicit auto", models.DecisionAuto, models.DecisionAuto},
	}
	for _, tt := range nameless {
		t.Run(tt.name, func(t *testing.T) {
			got := single(t, Input{
				Utterances: []models.Utterance{u},
				Events:     []models.SpeakerEvent{{StreamRole: models.StreamTeacher, UtteranceID: "t1", Decision: tt.decision}},
			})
			assert.Nil(t, got.SpeakerName)
			assert.Equal(t, tt.want, got.Decision)
			assert.Equal(t, ResolutionTeacherEvent, got.Resolution)
		})
	}

	t.Run("teacher binding without event", func(t *testing.T) {
		state := NewSessionState()
		state.BindTeacher("Interviewer")
		got := single(t, Input{Utterances: []models.Utterance{u}, State: state})
		assert.Equal(t, "Interviewer", got.Name())
		assert.Equal(t, models.DecisionConfirm, got.Decision)
	})

	t.Run("nothing known", func(t *testing.T) {
		got := single(t, Input{Utterances: []models.Utterance{u}})
		assert.Nil(t, got.SpeakerName)
		assert.Equal(t, models.DecisionUnknown, got.Decision)
	})
}

func TestReconcileBindingPrecedence(t *testing.T) {
	u := utt("u1", models.StreamStudents, 0, 1000)
	ev := models.SpeakerEvent{StreamRole: models.StreamStudents, UtteranceID: "u1", ClusterID: "c1", SpeakerName: "FromEvent"}

	tests := []struct {
		name       string
		setup      func(s *SessionState)
		wantName   string
		wantDec    models.Decision
		resolution string
	}{
		{
			name: "locked beats everything",
			setup: func(s *SessionState) {
				s.Meta["c1"] = BindingMeta{ParticipantName: "Alice", Source: SourceNameExtract, Locked: true}
				s.SetLegacy("c1", "Legacy", "manual")
			},
			wantName: "Alice", wantDec: models.DecisionAuto, resolution: ResolutionLocked,
		},
		{
			name:     "manual map",
			setup:    func(s *SessionState) { require.NoError(t, s.BindManual("c1", "Bob", now)) },
			wantName: "Bob", wantDec: models.DecisionAuto, resolution: ResolutionManualMap,
		},
		{
			name: "enrollment without direct binding confirms",
			setup: func(s *SessionState) {
				s.Meta["c1"] = BindingMeta{ParticipantName: "Cara", Source: SourceEnrollmentMatch}
			},
			wantName: "Cara", wantDec: models.DecisionConfirm, resolution: ResolutionEnrollment,
		},
		{
			name: "enrollment with direct binding is auto",
			setup: func(s *SessionState) {
				s.Meta["c1"] = BindingMeta{ParticipantName: "Cara", Source: SourceEnrollmentMatch}
				s.Bindings["c1"] = "Cara"
			},
			wantName: "Cara", wantDec: models.DecisionAuto, resolution: ResolutionEnrollment,
		},
		{
			name: "name extract always confirms",
			setup: func(s *SessionState) {
				s.Meta["c1"] = BindingMeta{ParticipantName: "Dan", Source: SourceNameExtract, Confidence: 0.95}
				s.Bindings["c1"] = "Dan"
			},
			wantName: "Dan", wantDec: models.DecisionConfirm, resolution: ResolutionNameExtract,
		},
		{
			name:     "plain binding",
			setup:    func(s *SessionState) { s.Bindings["c1"] = "Eve" },
			wantName: "Eve", wantDec: models.DecisionAuto, resolution: ResolutionDirectBinding,
		},
		{
			name:     "legacy manual",
			setup:    func(s *SessionState) { s.SetLegacy("c1", "Fay", "manual") },
			wantName: "Fay", wantDec: models.DecisionAuto, resolution: ResolutionLegacyMap,
		},
		{
			name:     "legacy automatic",
			setup:    func(s *SessionState) { s.SetLegacy("c1", "Gus", "sv") },
			wantName: "Gus", wantDec: models.DecisionConfirm, resolution: ResolutionLegacyMap,
		},
		{
			name:     "falls back to event name",
			setup:    func(s *SessionState) {},
			wantName: "FromEvent", wantDec: models.DecisionConfirm, resolution: ResolutionEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewSessionState()
			tt.setup(state)
			got := single(t, Input{Utterances: []models.Utterance{u}, Events: []models.SpeakerEvent{ev}, State: state})
			assert.Equal(t, tt.wantName, got.Name())
			assert.Equal(t, tt.wantDec, got.Decision)
			assert.Equal(t, tt.resolution, got.Resolution)
			assert.Equal(t, "c1", got.ClusterID)
		})
	}
}

func TestReconcileGlobalCluster(t *testing.T) {
	embeddings := []models.CachedEmbedding{
		{SegmentID: "s1", Embedding: []float32{1, 0}, StartMs: 0, EndMs: 600, StreamRole: models.StreamStudents},
		{SegmentID: "s2", Embedding: []float32{0, 1}, StartMs: 600, EndMs: 2000, StreamRole: models.StreamStudents},
	}
	res := cluster.Agglomerative(embeddings, cluster.DefaultOptions())
	require.Len(t, res.IDs, 2)
	roster := []models.RosterEntry{{Name: "Alice", Embedding: []float32{0, 1}}}
	view := NewGlobalView(embeddings, res, cluster.MatchRoster(res, roster, 0.5))

	ev := models.SpeakerEvent{StreamRole: models.StreamStudents, UtteranceID: "u1", ClusterID: "local-3"}

	t.Run("roster name wins over bindings", func(t *testing.T) {
		state := NewSessionState()
		require.NoError(t, state.BindManual("local-3", "Bob", now))
		got := single(t, Input{
			Utterances: []models.Utterance{utt("u1", models.StreamStudents, 500, 1500)},
			Events:     []models.SpeakerEvent{ev},
			State:      state,
			Global:     view,
		})
		assert.Equal(t, "Alice", got.Name())
		assert.Equal(t, models.DecisionAuto, got.Decision)
		assert.Equal(t, ResolutionGlobalCluster, got.Resolution)
	})

	t.Run("unmapped cluster falls through to binding", func(t *testing.T) {
		state := NewSessionState()
		require.NoError(t, state.BindManual("local-3", "Bob", now))
		got := single(t, Input{
			Utterances: []models.Utterance{utt("u1", models.StreamStudents, 0, 550)},
			Events:     []models.SpeakerEvent{ev},
			State:      state,
			Global:     view,
		})
		assert.Equal(t, "Bob", got.Name())
		assert.Equal(t, ResolutionManualMap, got.Resolution)
	})

	t.Run("unmapped cluster without binding asks for confirmation", func(t *testing.T) {
		got := single(t, Input{
			Utterances: []models.Utterance{utt("u1", models.StreamStudents, 0, 550)},
			Events:     []models.SpeakerEvent{ev},
			Global:     view,
		})
		assert.Nil(t, got.SpeakerName)
		assert.Equal(t, models.DecisionConfirm, got.Decision)
	})

	t.Run("not covered", func(t *testing.T) {
		got := single(t, Input{
			Utterances: []models.Utterance{utt("u1", models.StreamStudents, 5000, 6000)},
			Events:     []models.SpeakerEvent{ev},
			Global:     view,
		})
		assert.Nil(t, got.SpeakerName)
		assert.Equal(t, models.DecisionUnknown, got.Decision)
	})
}

func TestReconcileEventWithoutCluster(t *testing.T) {
	tests := []struct {
		name     string
		event    models.SpeakerEvent
		wantName string
		wantDec  models.Decision
	}{
		{"name defaults to confirm", models.SpeakerEvent{SpeakerName: "Hal"}, "Hal", models.DecisionConfirm},
		{"name with auto", models.SpeakerEvent{SpeakerName: "Hal", Decision: models.DecisionAuto}, "Hal", models.DecisionAuto},
		{"nameless defaults to confirm", models.SpeakerEvent{}, "", models.DecisionConfirm},
		{"nameless explicit confirm", models.SpeakerEvent{Decision: models.DecisionConfirm}, "", models.DecisionConfirm},
		{"nameless explicit unknown", models.SpeakerEvent{Decision: models.DecisionUnknown}, "", models.DecisionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := tt.event
			ev.StreamRole, ev.UtteranceID = models.StreamStudents, "u1"
			got := single(t, Input{
				Utterances: []models.Utterance{utt("u1", models.StreamStudents, 0, 1000)},
				Events:     []models.SpeakerEvent{ev},
			})
			if tt.wantName == "" {
				assert.Nil(t, got.SpeakerName)
			} else {
				assert.Equal(t, tt.wantName, got.Name())
			}
			assert.Equal(t, tt.wantDec, got.Decision)
			assert.Equal(t, ResolutionEvent, got.Resolution)
		})
	}
}

func TestReconcileLaterEventSupersedes(t *testing.T) {
	got := single(t, Input{
		Utterances: []models.Utterance{utt("u1", models.StreamStudents, 0, 1000)},
		Events: []models.SpeakerEvent{
			{StreamRole: models.StreamStudents, UtteranceID: "u1", SpeakerName: "First"},
			{StreamRole: models.StreamStudents, UtteranceID: "u1", SpeakerName: "Second", Decision: models.DecisionAuto},
		},
	})
	assert.Equal(t, "Second", got.Name())
	assert.Equal(t, models.DecisionAuto, got.Decision)
}

func TestReconcileNoEvent(t *testing.T) {
	u := utt("u1", models.StreamStudents, 1000, 2000)
	turns := []models.DiarizationTurn{
		{StartMs: 0, EndMs: 1500, ClusterID: "A"},
		{StartMs: 1500, EndMs: 3000, ClusterID: "B"},
		{StartMs: 1000, EndMs: 1200, ClusterID: "C"},
	}

	t.Run("cloud backend", func(t *testing.T) {
		got := single(t, Input{Utterances: []models.Utterance{u}, Backend: BackendCloud, LocalTurns: turns})
		assert.Nil(t, got.SpeakerName)
		assert.Equal(t, models.DecisionUnknown, got.Decision)
	})

	t.Run("on-device tie keeps first turn", func(t *testing.T) {
		state := NewSessionState()
		state.SetLegacy("A", "Ann", "manual")
		state.SetLegacy("B", "Ben", "manual")
		got := single(t, Input{Utterances: []models.Utterance{u}, Backend: BackendOnDevice, LocalTurns: turns, State: state})
		assert.Equal(t, "A", got.ClusterID)
		assert.Equal(t, "Ann", got.Name())
		assert.Equal(t, models.DecisionAuto, got.Decision)
		assert.Equal(t, ResolutionLocalTurns, got.Resolution)
	})

	t.Run("on-device without map entry", func(t *testing.T) {
		got := single(t, Input{Utterances: []models.Utterance{u}, Backend: BackendOnDevice, LocalTurns: turns})
		assert.Equal(t, "A", got.ClusterID)
		assert.Nil(t, got.SpeakerName)
		assert.Equal(t, models.DecisionUnknown, got.Decision)
	})

	t.Run("on-device without overlapping turn", func(t *testing.T) {
		got := single(t, Input{
			Utterances: []models.Utterance{utt("u2", models.StreamStudents, 9000, 9500)},
			Backend:    BackendOnDevice,
			LocalTurns: turns,
		})
		assert.Empty(t, got.ClusterID)
		assert.Equal(t, models.DecisionUnknown, got.Decision)
	})
}

func TestReconcileSortedByStart(t *testing.T) {
	out := Reconcile(Input{Utterances: []models.Utterance{
		utt("c", models.StreamStudents, 3000, 4000),
		utt("a", models.StreamTeacher, 1000, 2000),
		utt("b", models.StreamStudents, 1000, 1500),
	}})
	require.Len(t, out, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
}
