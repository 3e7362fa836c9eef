package service

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
	"github.com/raphaelgruber/voxrecon/internal/embedcache"
	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/reconcile"
	"github.com/raphaelgruber/voxrecon/internal/scheduler"
	"github.com/raphaelgruber/voxrecon/internal/stats"
)

// Session holds the live state of one recording session. Every field below mu
// is guarded by it, so increments for one session run one at a time.
type Session struct {
	ID        string
	CreatedAt time.Time
	// lastActive is read without mu so the manager never waits on a busy session.
	lastActive atomic.Int64

	mu                 sync.Mutex
	status             string
	cache              *embedcache.Cache
	online             *cluster.Online
	state              *reconcile.SessionState
	utterances         []models.Utterance
	increments         []scheduler.IncrementResult
	events             []models.SpeakerEvent
	diarEvents         []models.SpeakerEvent
	memos              []models.Memo
	localTurns         []models.DiarizationTurn
	lastProcessedEndMs int64
	recordedEndMs      int64
	rejected           int
	result             *Result
	report             *models.Report
}

// Info is a point-in-time summary of a session.
type Info struct {
	ID                 string    `json:"id"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	LastActive         time.Time `json:"last_active"`
	Utterances         int       `json:"utterances"`
	Embeddings         int       `json:"embeddings"`
	CacheBytes         int64     `json:"cache_bytes"`
	CacheMaxBytes      int64     `json:"cache_max_bytes"`
	Rejected           int       `json:"rejected_embeddings"`
	Increments         int       `json:"increments"`
	LastProcessedEndMs int64     `json:"last_processed_end_ms"`
	RecordedEndMs      int64     `json:"recorded_end_ms"`
	HasReport          bool      `json:"has_report"`
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Transcript []models.ReconciledUtterance `json:"transcript"`
	Clusters   cluster.Result               `json:"clusters"`
	Mapping    cluster.RosterMapping        `json:"mapping"`
	Stats      stats.Summary                `json:"stats"`
	Evidence   []models.Evidence            `json:"evidence"`
	Events     []models.AnalysisEvent       `json:"events"`
	// Named lists clusters that gained a binding during this pass.
	Named      []string  `json:"named,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

func newSession(id string, cacheMaxBytes int64, onlineThreshold float64, now time.Time) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		status:    scheduler.StatusRecording,
		cache:     embedcache.New(cacheMaxBytes),
		online:    cluster.NewOnline(onlineThreshold),
		state:     reconcile.NewSessionState(),
	}
	s.touch(now)
	return s
}

// Info returns a thread-safe summary of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() Info {
	return Info{
		ID:                 s.ID,
		Status:             s.status,
		CreatedAt:          s.CreatedAt,
		LastActive:         s.lastActiveAt(),
		Utterances:         len(s.utterances),
		Embeddings:         s.cache.Len(),
		CacheBytes:         s.cache.MemoryUsage(),
		CacheMaxBytes:      s.cache.MaxBytes(),
		Rejected:           s.rejected,
		Increments:         len(s.increments),
		LastProcessedEndMs: s.lastProcessedEndMs,
		RecordedEndMs:      s.recordedEndMs,
		HasReport:          s.report != nil,
	}
}

func (s *Session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

func (s *Session) lastActiveAt() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// transcriptLocked merges increment transcripts with directly ingested
// utterances. Increment output wins on duplicate ids.
func (s *Session) transcriptLocked(cfg scheduler.Config) []models.Utterance {
	merged := scheduler.MergeIncrements(s.increments, cfg.CumulativeThreshold, cfg.OverlapMs)
	seen := make(map[string]bool, len(merged))
	for _, u := range merged {
		seen[u.ID] = true
	}
	for _, u := range s.utterances {
		if !seen[u.ID] {
			seen[u.ID] = true
			merged = append(merged, u)
		}
	}
	slices.SortStableFunc(merged, func(a, b models.Utterance) int {
		return cmp.Compare(a.StartMs, b.StartMs)
	})
	return merged
}

// eventsLocked returns diarization-derived events followed by external ones,
// so external assertions supersede diarization for the same utterance.
func (s *Session) eventsLocked() []models.SpeakerEvent {
	out := make([]models.SpeakerEvent, 0, len(s.diarEvents)+len(s.events))
	out = append(out, s.diarEvents...)
	return append(out, s.events...)
}

// persisted is the JSON form of everything except the embedding cache.
type persisted struct {
	Status             string                      `json:"status"`
	State              *reconcile.SessionState     `json:"state"`
	Utterances         []models.Utterance          `json:"utterances,omitempty"`
	Increments         []scheduler.IncrementResult `json:"increments,omitempty"`
	Events             []models.SpeakerEvent       `json:"events,omitempty"`
	DiarEvents         []models.SpeakerEvent       `json:"diarization_events,omitempty"`
	Memos              []models.Memo               `json:"memos,omitempty"`
	LocalTurns         []models.DiarizationTurn    `json:"local_turns,omitempty"`
	LastProcessedEndMs int64                       `json:"last_processed_end_ms"`
	RecordedEndMs      int64                       `json:"recorded_end_ms"`
}

func (s *Session) marshalLocked() (cache, state []byte, err error) {
	cache, err = s.cache.Serialize()
	if err != nil {
		return nil, nil, err
	}
	state, err = json.Marshal(persisted{
		Status:             s.status,
		State:              s.state,
		Utterances:         s.utterances,
		Increments:         s.increments,
		Events:             s.events,
		DiarEvents:         s.diarEvents,
		Memos:              s.memos,
		LocalTurns:         s.localTurns,
		LastProcessedEndMs: s.lastProcessedEndMs,
		RecordedEndMs:      s.recordedEndMs,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal state: %w", err)
	}
	return cache, state, nil
}

// restoreLocked replaces the session contents. It returns the number of cached
// embeddings dropped because they did not fit the budget.
func (s *Session) restoreLocked(cache, state []byte) (int, error) {
	var p persisted
	if err := json.Unmarshal(state, &p); err != nil {
		return 0, fmt.Errorf("unmarshal state: %w", err)
	}
	skipped, err := s.cache.Deserialize(cache)
	if err != nil {
		return 0, err
	}
	if p.State == nil {
		p.State = reconcile.NewSessionState()
	}
	s.status = cmp.Or(p.Status, scheduler.StatusRecording)
	s.state = p.State
	s.utterances = p.Utterances
	s.increments = p.Increments
	s.events = p.Events
	s.diarEvents = p.DiarEvents
	s.memos = p.Memos
	s.localTurns = p.LocalTurns
	s.lastProcessedEndMs = p.LastProcessedEndMs
	s.recordedEndMs = p.RecordedEndMs
	s.result = nil
	return skipped, nil
}
