package reconcile

import "github.com/raphaelgruber/voxrecon/internal/models"

// Resolution tags name the rule that produced an attribution.
const (
	ResolutionTeacherEvent   = "teacher_event"
	ResolutionTeacherBinding = "teacher_binding"
	ResolutionGlobalCluster  = "global_cluster"
	ResolutionLocked         = "locked"
	ResolutionManualMap      = "manual_map"
	ResolutionEnrollment     = "enrollment_match"
	ResolutionNameExtract    = "name_extract"
	ResolutionDirectBinding  = "direct_binding"
	ResolutionLegacyMap      = "legacy_map"
	ResolutionEvent          = "event"
	ResolutionLocalTurns     = "local_turns"
	ResolutionNone           = "none"
)

type attribution struct {
	name       string
	decision   models.Decision
	resolution string
}

func orConfirm(d models.Decision) models.Decision {
	if d == "" {
		return models.DecisionConfirm
	}
	return d
}

// resolveTeacher takes the event's name and decision. A nameless event keeps
// its decision, confirm when omitted.
func resolveTeacher(ev *models.SpeakerEvent, state *SessionState) attribution {
	binding := state.Bindings[TeacherKey]
	if ev != nil {
		name := ev.SpeakerName
		if name == "" {
			name = binding
		}
		return attribution{name: name, decision: orConfirm(ev.Decision), resolution: ResolutionTeacherEvent}
	}
	if binding != "" {
		return attribution{name: binding, decision: models.DecisionConfirm, resolution: ResolutionTeacherBinding}
	}
	return attribution{decision: models.DecisionUnknown, resolution: ResolutionNone}
}

// resolveBinding applies binding precedence for a cluster: locked, manual map,
// enrollment match, name extract, plain binding, then the legacy map.
func resolveBinding(clusterID string, state *SessionState) (attribution, bool) {
	direct, hasDirect := state.Bindings[clusterID]
	if m, ok := state.Meta[clusterID]; ok {
		name := m.ParticipantName
		if name == "" {
			name = direct
		}
		if name != "" {
			switch {
			case m.Locked:
				return attribution{name: name, decision: models.DecisionAuto, resolution: ResolutionLocked}, true
			case m.Source == SourceManualMap:
				return attribution{name: name, decision: models.DecisionAuto, resolution: ResolutionManualMap}, true
			case m.Source == SourceEnrollmentMatch:
				d := models.DecisionConfirm
				if hasDirect {
					d = models.DecisionAuto
				}
				return attribution{name: name, decision: d, resolution: ResolutionEnrollment}, true
			case m.Source == SourceNameExtract:
				return attribution{name: name, decision: models.DecisionConfirm, resolution: ResolutionNameExtract}, true
			}
		}
	}
	if hasDirect && direct != "" {
		return attribution{name: direct, decision: models.DecisionAuto, resolution: ResolutionDirectBinding}, true
	}
	return resolveLegacy(clusterID, state)
}

func resolveLegacy(clusterID string, state *SessionState) (attribution, bool) {
	l, ok := state.Legacy[clusterID]
	if !ok || l.Name == "" {
		return attribution{}, false
	}
	d := models.DecisionConfirm
	if l.Source == "manual" {
		d = models.DecisionAuto
	}
	return attribution{name: l.Name, decision: d, resolution: ResolutionLegacyMap}, true
}

func resolveEvent(ev *models.SpeakerEvent) attribution {
	return attribution{name: ev.SpeakerName, decision: orConfirm(ev.Decision), resolution: ResolutionEvent}
}

// inferLocalCluster returns the cluster of the turn overlapping [start,end) the
// most. Ties keep the first turn found.
func inferLocalCluster(start, end int64, turns []models.DiarizationTurn) string {
	best := ""
	var bestOverlap int64
	for _, t := range turns {
		if ov := models.Overlap(start, end, t.StartMs, t.EndMs); ov > bestOverlap {
			best, bestOverlap = t.ClusterID, ov
		}
	}
	return best
}
