package reconcile

import (
	"cmp"
	"slices"
	"strings"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// Backend identifies where diarization runs.
type Backend string

const (
	BackendOnDevice Backend = "on_device"
	BackendCloud    Backend = "cloud"
)

// Input is everything the engine resolves against.
type Input struct {
	Utterances []models.Utterance
	// Events are applied in order; a later event for the same utterance wins.
	Events     []models.SpeakerEvent
	State      *SessionState
	Global     *GlobalView
	Backend    Backend
	LocalTurns []models.DiarizationTurn
}

type eventKey struct {
	role models.StreamRole
	id   string
}

// Reconcile attributes every utterance and returns them ordered by start time.
// It does not modify its input.
func Reconcile(in Input) []models.ReconciledUtterance {
	state := in.State
	if state == nil {
		state = NewSessionState()
	}
	events := make(map[eventKey]models.SpeakerEvent, len(in.Events))
	for _, ev := range in.Events {
		events[eventKey{ev.StreamRole, ev.UtteranceID}] = ev
	}

	out := make([]models.ReconciledUtterance, 0, len(in.Utterances))
	for _, u := range in.Utterances {
		var ev *models.SpeakerEvent
		if e, ok := events[eventKey{u.StreamRole, u.ID}]; ok {
			ev = &e
		}
		clusterID, a := resolveUtterance(u, ev, state, in)
		out = append(out, models.ReconciledUtterance{
			Utterance:   u,
			ClusterID:   clusterID,
			SpeakerName: models.StrPtr(a.name),
			Decision:    a.decision,
			Resolution:  a.resolution,
		})
	}

	slices.SortStableFunc(out, func(a, b models.ReconciledUtterance) int {
		if c := cmp.Compare(a.StartMs, b.StartMs); c != 0 {
			return c
		}
		if c := strings.Compare(string(a.StreamRole), string(b.StreamRole)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func resolveUtterance(u models.Utterance, ev *models.SpeakerEvent, state *SessionState, in Input) (string, attribution) {
	if u.StreamRole == models.StreamTeacher {
		return "", resolveTeacher(ev, state)
	}

	if ev != nil && ev.ClusterID != "" {
		return ev.ClusterID, resolveCluster(u, ev, state, in.Global)
	}
	if ev != nil {
		return "", resolveEvent(ev)
	}

	if in.Backend == BackendOnDevice {
		if c := inferLocalCluster(u.StartMs, u.EndMs, in.LocalTurns); c != "" {
			if a, ok := resolveLegacy(c, state); ok {
				a.resolution = ResolutionLocalTurns
				return c, a
			}
			return c, attribution{decision: models.DecisionUnknown, resolution: ResolutionLocalTurns}
		}
	}
	return "", attribution{decision: models.DecisionUnknown, resolution: ResolutionNone}
}

func resolveCluster(u models.Utterance, ev *models.SpeakerEvent, state *SessionState, global *GlobalView) attribution {
	coveredUnmapped := false
	if global != nil {
		if _, name, matched, covered := global.Resolve(u); covered {
			if matched {
				return attribution{name: name, decision: models.DecisionAuto, resolution: ResolutionGlobalCluster}
			}
			coveredUnmapped = true
		}
	}
	if a, ok := resolveBinding(ev.ClusterID, state); ok {
		return a
	}
	if ev.SpeakerName != "" {
		return resolveEvent(ev)
	}
	if coveredUnmapped {
		return attribution{decision: models.DecisionConfirm, resolution: ResolutionGlobalCluster}
	}
	return attribution{decision: models.DecisionUnknown, resolution: ResolutionNone}
}
