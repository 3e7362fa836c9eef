package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestOverlap(t *testing.T) {
	tests := []struct {
		name         string
		aStart, aEnd int64
		bStart, bEnd int64
		want         int64
	}{
		{"disjoint", 0, 100, 200, 300, 0},
		{"touching", 0, 100, 100, 200, 0},
		{"partial", 0, 150, 100, 200, 50},
		{"contained", 0, 1000, 100, 200, 100},
		{"identical", 10, 20, 10, 20, 10},
		{"reversed order", 100, 200, 0, 150, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlap(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd)
			if got != tt.want {
				t.Errorf("Overlap() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUtteranceDuration(t *testing.T) {
	tests := []struct {
		name string
		u    Utterance
		want int64
	}{
		{"explicit duration", Utterance{StartMs: 0, EndMs: 100, DurationMs: 90}, 90},
		{"derived from bounds", Utterance{StartMs: 100, EndMs: 350}, 250},
		{"inverted bounds", Utterance{StartMs: 350, EndMs: 100}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.u.Duration(); got != tt.want {
				t.Errorf("Duration() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSpeakerKey(t *testing.T) {
	name := "Alice"
	tests := []struct {
		name string
		r    ReconciledUtterance
		want string
	}{
		{"name wins", ReconciledUtterance{SpeakerName: &name, ClusterID: "spk_00"}, "Alice"},
		{"cluster fallback", ReconciledUtterance{ClusterID: "spk_01"}, "spk_01"},
		{"teacher stream", ReconciledUtterance{Utterance: Utterance{StreamRole: StreamTeacher}}, "teacher"},
		{"unknown", ReconciledUtterance{Utterance: Utterance{StreamRole: StreamStudents}}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.SpeakerKey(); got != tt.want {
				t.Errorf("SpeakerKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecordIDString(t *testing.T) {
	s, err := RecordIDString(surrealmodels.RecordID{Table: "session", ID: "abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "abc" {
		t.Errorf("RecordIDString() = %q, want abc", s)
	}

	if _, err := RecordIDString(surrealmodels.RecordID{Table: "session", ID: 42}); err == nil {
		t.Error("expected error for non-string id")
	}
}
