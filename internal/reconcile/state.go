// Package reconcile merges speaker signals into one attributed transcript.
package reconcile

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
	"github.com/raphaelgruber/voxrecon/internal/models"
)

// BindingSource records how a cluster binding was established.
type BindingSource string

const (
	SourceManualMap       BindingSource = "manual_map"
	SourceEnrollmentMatch BindingSource = "enrollment_match"
	SourceNameExtract     BindingSource = "name_extract"
)

// TeacherKey is the binding key of the interviewer channel.
const TeacherKey = "teacher"

// NameExtractPersistThreshold is the minimum candidate confidence for an
// extracted name to become a binding.
const NameExtractPersistThreshold = 0.93

var (
	// ErrClusterNotBound is returned when an operation needs an existing binding.
	ErrClusterNotBound = errors.New("cluster not bound")
	// ErrBindingLocked is returned when a locked binding would be changed.
	ErrBindingLocked = errors.New("binding locked")
)

// BindingMeta describes a cluster-to-participant binding.
type BindingMeta struct {
	ParticipantName string        `json:"participant_name"`
	Source          BindingSource `json:"source"`
	Confidence      float64       `json:"confidence"`
	Locked          bool          `json:"locked"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// LegacyBinding is an entry of the fallback speaker map.
type LegacyBinding struct {
	Name   string `json:"name"`
	Source string `json:"source"` // "manual" resolves auto
}

// SessionState is the mutable per-session binding state.
type SessionState struct {
	// Bindings holds confirmed cluster -> name bindings; TeacherKey binds the interviewer.
	Bindings map[string]string        `json:"bindings"`
	Meta     map[string]BindingMeta   `json:"meta"`
	Legacy   map[string]LegacyBinding `json:"legacy"`
	Roster   []models.RosterEntry     `json:"roster,omitempty"`
}

// NewSessionState returns an empty state.
func NewSessionState() *SessionState {
	return &SessionState{
		Bindings: make(map[string]string),
		Meta:     make(map[string]BindingMeta),
		Legacy:   make(map[string]LegacyBinding),
	}
}

func (s *SessionState) ensure() {
	if s.Bindings == nil {
		s.Bindings = make(map[string]string)
	}
	if s.Meta == nil {
		s.Meta = make(map[string]BindingMeta)
	}
	if s.Legacy == nil {
		s.Legacy = make(map[string]LegacyBinding)
	}
}

// Clone returns a deep copy of s.
func (s *SessionState) Clone() *SessionState {
	return &SessionState{
		Bindings: maps.Clone(s.Bindings),
		Meta:     maps.Clone(s.Meta),
		Legacy:   maps.Clone(s.Legacy),
		Roster:   slices.Clone(s.Roster),
	}
}

// BindManual binds clusterID to name as an operator decision.
func (s *SessionState) BindManual(clusterID, name string, now time.Time) error {
	s.ensure()
	if m, ok := s.Meta[clusterID]; ok && m.Locked && m.ParticipantName != name {
		return fmt.Errorf("bind %s: %w", clusterID, ErrBindingLocked)
	}
	locked := s.Meta[clusterID].Locked
	s.Bindings[clusterID] = name
	s.Meta[clusterID] = BindingMeta{
		ParticipantName: name,
		Source:          SourceManualMap,
		Confidence:      1,
		Locked:          locked,
		UpdatedAt:       now,
	}
	return nil
}

// BindTeacher sets the interviewer channel name.
func (s *SessionState) BindTeacher(name string) {
	s.ensure()
	s.Bindings[TeacherKey] = name
}

// Confirm promotes the metadata name of clusterID to a direct binding.
func (s *SessionState) Confirm(clusterID string, now time.Time) error {
	s.ensure()
	m, ok := s.Meta[clusterID]
	if !ok || m.ParticipantName == "" {
		return fmt.Errorf("confirm %s: %w", clusterID, ErrClusterNotBound)
	}
	s.Bindings[clusterID] = m.ParticipantName
	m.UpdatedAt = now
	s.Meta[clusterID] = m
	return nil
}

// Lock pins the binding of clusterID so automatic updates leave it alone.
func (s *SessionState) Lock(clusterID string, now time.Time) error {
	return s.setLocked(clusterID, true, now)
}

// Unlock releases a pinned binding.
func (s *SessionState) Unlock(clusterID string, now time.Time) error {
	return s.setLocked(clusterID, false, now)
}

func (s *SessionState) setLocked(clusterID string, locked bool, now time.Time) error {
	s.ensure()
	m, ok := s.Meta[clusterID]
	if !ok {
		name, bound := s.Bindings[clusterID]
		if !bound {
			return fmt.Errorf("lock %s: %w", clusterID, ErrClusterNotBound)
		}
		m = BindingMeta{ParticipantName: name, Source: SourceManualMap, Confidence: 1}
	}
	m.Locked = locked
	m.UpdatedAt = now
	s.Meta[clusterID] = m
	return nil
}

// Unbind removes every binding of clusterID.
func (s *SessionState) Unbind(clusterID string) error {
	s.ensure()
	if s.Meta[clusterID].Locked {
		return fmt.Errorf("unbind %s: %w", clusterID, ErrBindingLocked)
	}
	delete(s.Bindings, clusterID)
	delete(s.Meta, clusterID)
	delete(s.Legacy, clusterID)
	return nil
}

// SetLegacy records a fallback speaker map entry.
func (s *SessionState) SetLegacy(clusterID, name, source string) {
	s.ensure()
	s.Legacy[clusterID] = LegacyBinding{Name: name, Source: source}
}

// ApplyRosterMapping records enrollment matches keyed by window cluster id.
// Locked and manual bindings are left untouched. It returns the cluster ids
// that changed.
func (s *SessionState) ApplyRosterMapping(m cluster.RosterMapping, now time.Time) []string {
	s.ensure()
	var changed []string
	for _, id := range slices.Sorted(maps.Keys(m.Matched)) {
		if !m.Matched[id] {
			continue
		}
		prev, ok := s.Meta[id]
		if _, bound := s.Bindings[id]; bound && !ok {
			continue
		}
		if ok && (prev.Locked || prev.Source == SourceManualMap) {
			continue
		}
		name := m.Names[id]
		if ok && prev.Source == SourceEnrollmentMatch && prev.ParticipantName == name {
			continue
		}
		if ok && prev.ParticipantName != name {
			// The direct binding belonged to the previous name.
			delete(s.Bindings, id)
		}
		s.Meta[id] = BindingMeta{
			ParticipantName: name,
			Source:          SourceEnrollmentMatch,
			Confidence:      m.Scores[id],
			UpdatedAt:       now,
		}
		changed = append(changed, id)
	}
	return changed
}

// ApplyNameCandidate records a self-introduced name for clusterID. The name is
// only kept when the cluster has no binding yet and confidence is at least
// NameExtractPersistThreshold.
func (s *SessionState) ApplyNameCandidate(clusterID, name string, confidence float64, now time.Time) bool {
	s.ensure()
	if clusterID == "" || name == "" || confidence < NameExtractPersistThreshold {
		return false
	}
	if _, ok := s.Meta[clusterID]; ok {
		return false
	}
	if _, ok := s.Bindings[clusterID]; ok {
		return false
	}
	s.Meta[clusterID] = BindingMeta{
		ParticipantName: name,
		Source:          SourceNameExtract,
		Confidence:      confidence,
		UpdatedAt:       now,
	}
	return true
}
