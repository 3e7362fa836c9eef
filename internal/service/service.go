package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
	"github.com/raphaelgruber/voxrecon/internal/config"
	"github.com/raphaelgruber/voxrecon/internal/embedding"
	"github.com/raphaelgruber/voxrecon/internal/evidence"
	"github.com/raphaelgruber/voxrecon/internal/metrics"
	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/provider"
	"github.com/raphaelgruber/voxrecon/internal/reconcile"
	"github.com/raphaelgruber/voxrecon/internal/store"
)

// ErrInvalidInput wraps validation failures of ingested data.
var ErrInvalidInput = errors.New("invalid input")

// Store persists session snapshots and reports.
type Store interface {
	SaveSnapshot(ctx context.Context, snap store.Snapshot) error
	LoadSnapshot(ctx context.Context, sessionID string) (*store.Snapshot, error)
	SaveReport(ctx context.Context, sessionID string, rep *models.Report) error
	LatestReport(ctx context.Context, sessionID string) (*models.Report, error)
}

// Service runs the speaker resolution pipeline for many sessions.
type Service struct {
	cfg         config.Config
	clusterOpts cluster.Options
	sessions    *Manager
	registry    *provider.Registry
	embedder    embedding.Embedder
	store       Store
	collector   *metrics.Collector
	builder     *evidence.Builder
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStore enables persistence.
func WithStore(st Store) Option {
	return func(s *Service) { s.store = st }
}

// WithEmbedder enables semantic memo matching.
func WithEmbedder(e embedding.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithCollector sets the timing collector.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Service) { s.collector = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a service. registry may be empty; operations needing a missing
// provider fail with provider.ErrNotRegistered.
func New(cfg config.Config, registry *provider.Registry, opts ...Option) *Service {
	s := &Service{
		cfg:         cfg,
		clusterOpts: cfg.ClusterOptions(),
		registry:    registry,
		collector:   metrics.NewCollector(),
		builder:     evidence.NewBuilder(evidence.DefaultOptions()),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = provider.NewRegistry()
	}
	s.sessions = NewManager(cfg.MaxSessions, cfg.SessionTTL, func(id string, now time.Time) *Session {
		return newSession(id, cfg.CacheMaxBytes, cfg.OnlineThreshold, now)
	}, s.logger)
	s.sessions.now = s.now
	return s
}

// Collector returns the timing collector.
func (s *Service) Collector() *metrics.Collector { return s.collector }

// Registry returns the provider registry.
func (s *Service) Registry() *provider.Registry { return s.registry }

// CreateSession starts an empty session.
func (s *Service) CreateSession() Info {
	return s.sessions.Create().Info()
}

// Session returns the summary of one session.
func (s *Service) Session(id string) (Info, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return Info{}, err
	}
	return sess.Info(), nil
}

// Sessions lists all live sessions, most recent first.
func (s *Service) Sessions() []Info {
	list := s.sessions.List()
	out := make([]Info, len(list))
	for i, sess := range list {
		out[i] = sess.Info()
	}
	return out
}

// DeleteSession drops a live session. Persisted snapshots are kept.
func (s *Service) DeleteSession(id string) error {
	if !s.sessions.Delete(id) {
		return ErrSessionNotFound
	}
	return nil
}

// CleanupStale removes idle sessions.
func (s *Service) CleanupStale() int {
	return s.sessions.CleanupStale()
}

// withSession runs fn with the session locked.
func (s *Service) withSession(id string, fn func(sess *Session) error) error {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touch(s.now())
	return fn(sess)
}

// AddUtterances appends transcript utterances to a session.
func (s *Service) AddUtterances(id string, utts []models.Utterance) error {
	for i := range utts {
		if err := normalizeUtterance(&utts[i]); err != nil {
			return err
		}
	}
	return s.withSession(id, func(sess *Session) error {
		sess.addUtterancesLocked(utts)
		return nil
	})
}

func normalizeUtterance(u *models.Utterance) error {
	if u.ID == "" {
		return fmt.Errorf("%w: utterance without id", ErrInvalidInput)
	}
	if u.EndMs < u.StartMs {
		return fmt.Errorf("%w: utterance %s ends before it starts", ErrInvalidInput, u.ID)
	}
	if u.StreamRole == "" {
		u.StreamRole = models.StreamMixed
	}
	u.DurationMs = u.EndMs - u.StartMs
	return nil
}

func (sess *Session) addUtterancesLocked(utts []models.Utterance) {
	sess.utterances = append(sess.utterances, utts...)
	for _, u := range utts {
		sess.recordedEndMs = max(sess.recordedEndMs, u.EndMs)
	}
	sess.result = nil
}

// IngestResult counts the embeddings a cache accepted and refused.
type IngestResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	// Assigned counts segments labelled by the online assigner.
	Assigned int `json:"assigned"`
}

// AddEmbeddings inserts segment embeddings into the session cache. Segments
// without a window cluster are labelled by the online assigner. Embeddings the
// cache refuses are counted and logged, not returned as errors.
func (s *Service) AddEmbeddings(id string, embs []models.CachedEmbedding) (IngestResult, error) {
	for _, e := range embs {
		if e.SegmentID == "" || len(e.Embedding) == 0 {
			return IngestResult{}, fmt.Errorf("%w: embedding needs a segment id and a vector", ErrInvalidInput)
		}
	}
	var res IngestResult
	err := s.withSession(id, func(sess *Session) error {
		res = s.insertEmbeddingsLocked(sess, embs)
		return nil
	})
	return res, err
}

func (s *Service) insertEmbeddingsLocked(sess *Session, embs []models.CachedEmbedding) IngestResult {
	var res IngestResult
	for _, e := range embs {
		if e.StreamRole == "" {
			e.StreamRole = models.StreamStudents
		}
		if e.WindowClusterID == "" {
			e.WindowClusterID, _ = sess.online.Assign(e.Embedding)
			res.Assigned++
		}
		if !sess.cache.Insert(e) {
			res.Rejected++
			sess.rejected++
			metrics.CacheRejections.Inc()
			s.logger.Warn("embedding cache full, segment rejected",
				"session_id", sess.ID,
				"segment_id", e.SegmentID,
				"cache_bytes", sess.cache.MemoryUsage(),
				"max_bytes", sess.cache.MaxBytes())
			continue
		}
		res.Accepted++
	}
	metrics.CacheBytes.WithLabelValues(sess.ID).Set(float64(sess.cache.MemoryUsage()))
	sess.result = nil
	return res
}

// AddEvents records speaker assertions. Later events for the same utterance
// supersede earlier ones during reconciliation.
func (s *Service) AddEvents(id string, events []models.SpeakerEvent) error {
	for _, ev := range events {
		if ev.UtteranceID == "" {
			return fmt.Errorf("%w: event without utterance id", ErrInvalidInput)
		}
		if ev.Decision != "" && !ev.Decision.Valid() {
			return fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, ev.Decision)
		}
	}
	return s.withSession(id, func(sess *Session) error {
		sess.events = append(sess.events, events...)
		sess.result = nil
		return nil
	})
}

// AddMemos records operator notes.
func (s *Service) AddMemos(id string, memos []models.Memo) error {
	for _, m := range memos {
		if m.MemoID == "" {
			return fmt.Errorf("%w: memo without id", ErrInvalidInput)
		}
	}
	return s.withSession(id, func(sess *Session) error {
		sess.memos = append(sess.memos, memos...)
		sess.result = nil
		return nil
	})
}

// AddLocalTurns records on-device diarization turns.
func (s *Service) AddLocalTurns(id string, turns []models.DiarizationTurn) error {
	return s.withSession(id, func(sess *Session) error {
		sess.localTurns = append(sess.localTurns, turns...)
		sess.result = nil
		return nil
	})
}

// SetRoster replaces the expected participants.
func (s *Service) SetRoster(id string, roster []models.RosterEntry) error {
	return s.withSession(id, func(sess *Session) error {
		sess.state.Roster = roster
		sess.result = nil
		return nil
	})
}

// Enroll extracts a voice embedding for a roster participant and adds or
// replaces their roster entry.
func (s *Service) Enroll(ctx context.Context, id string, entry models.RosterEntry, audio provider.Audio) (models.RosterEntry, error) {
	if entry.Name == "" {
		return models.RosterEntry{}, fmt.Errorf("%w: enrollment without name", ErrInvalidInput)
	}
	verifier, err := s.registry.Verifier()
	if err != nil {
		return models.RosterEntry{}, err
	}
	vec, err := verifier.ExtractEmbedding(ctx, audio)
	if err != nil {
		return models.RosterEntry{}, fmt.Errorf("extract embedding: %w", err)
	}
	entry.Embedding = vec

	err = s.withSession(id, func(sess *Session) error {
		replaced := false
		for i, r := range sess.state.Roster {
			if r.Name == entry.Name {
				sess.state.Roster[i] = entry
				replaced = true
				continue
			}
			if len(r.Embedding) == 0 {
				continue
			}
			score, err := verifier.ScoreEmbeddings(vec, r.Embedding)
			if err != nil {
				continue
			}
			if score >= s.cfg.RosterThreshold {
				s.logger.Warn("enrolled voice resembles another participant",
					"session_id", id, "name", entry.Name, "other", r.Name, "score", score)
			}
		}
		if !replaced {
			sess.state.Roster = append(sess.state.Roster, entry)
		}
		sess.result = nil
		return nil
	})
	return entry, err
}

// BindingAction is an operator change to session bindings.
type BindingAction string

const (
	ActionBind    BindingAction = "bind"
	ActionConfirm BindingAction = "confirm"
	ActionLock    BindingAction = "lock"
	ActionUnlock  BindingAction = "unlock"
	ActionUnbind  BindingAction = "unbind"
	ActionTeacher BindingAction = "teacher"
	ActionLegacy  BindingAction = "legacy"
)

// BindingRequest describes one binding change. Name is used by bind, teacher
// and legacy; Source only by legacy.
type BindingRequest struct {
	Action    BindingAction `json:"action"`
	ClusterID string        `json:"cluster_id"`
	Name      string        `json:"name,omitempty"`
	Source    string        `json:"source,omitempty"`
}

// UpdateBinding applies req and returns a copy of the resulting state.
func (s *Service) UpdateBinding(id string, req BindingRequest) (*reconcile.SessionState, error) {
	var out *reconcile.SessionState
	err := s.withSession(id, func(sess *Session) error {
		now := s.now()
		var err error
		switch req.Action {
		case ActionBind:
			if req.ClusterID == "" || req.Name == "" {
				return fmt.Errorf("%w: bind needs cluster_id and name", ErrInvalidInput)
			}
			err = sess.state.BindManual(req.ClusterID, req.Name, now)
		case ActionConfirm:
			err = sess.state.Confirm(req.ClusterID, now)
		case ActionLock:
			err = sess.state.Lock(req.ClusterID, now)
		case ActionUnlock:
			err = sess.state.Unlock(req.ClusterID, now)
		case ActionUnbind:
			err = sess.state.Unbind(req.ClusterID)
		case ActionTeacher:
			if req.Name == "" {
				return fmt.Errorf("%w: teacher binding needs a name", ErrInvalidInput)
			}
			sess.state.BindTeacher(req.Name)
		case ActionLegacy:
			if req.ClusterID == "" || req.Name == "" {
				return fmt.Errorf("%w: legacy binding needs cluster_id and name", ErrInvalidInput)
			}
			sess.state.SetLegacy(req.ClusterID, req.Name, req.Source)
		default:
			return fmt.Errorf("%w: unknown binding action %q", ErrInvalidInput, req.Action)
		}
		if err != nil {
			return err
		}
		sess.result = nil
		out = sess.state.Clone()
		return nil
	})
	return out, err
}

// State returns a copy of the session binding state.
func (s *Service) State(id string) (*reconcile.SessionState, error) {
	var out *reconcile.SessionState
	err := s.withSession(id, func(sess *Session) error {
		out = sess.state.Clone()
		return nil
	})
	return out, err
}
