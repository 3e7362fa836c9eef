// Package service orchestrates the per-session speaker resolution pipeline.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/voxrecon/internal/metrics"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// finalizeConcurrency bounds how many sessions FinalizeAll processes at once.
const finalizeConcurrency = 4

// Manager tracks live sessions. It caps their number by evicting the least
// recently active one and drops sessions idle for longer than the TTL.
type Manager struct {
	sessions    map[string]*Session
	mu          sync.RWMutex
	maxSessions int
	ttl         time.Duration
	factory     func(id string, now time.Time) *Session
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager creates a manager. factory builds an empty session for an id.
func NewManager(maxSessions int, ttl time.Duration, factory func(id string, now time.Time) *Session, logger *slog.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		ttl:         ttl,
		factory:     factory,
		logger:      logger,
		now:         time.Now,
	}
}

// Create starts a new session with a fresh id.
func (m *Manager) Create() *Session {
	return m.Open(uuid.New().String())
}

// Open returns the session with id, creating it when missing.
func (m *Manager) Open(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	if len(m.sessions) >= m.maxSessions {
		m.evictLocked()
	}
	s := m.factory(id, m.now())
	m.sessions[id] = s
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.logger.Info("session created", "session_id", id)
	return s
}

// evictLocked drops the least recently active session.
func (m *Manager) evictLocked() {
	var oldest *Session
	var oldestAt time.Time
	for _, s := range m.sessions {
		at := s.lastActiveAt()
		if oldest == nil || at.Before(oldestAt) {
			oldest, oldestAt = s, at
		}
	}
	if oldest == nil {
		return
	}
	m.removeLocked(oldest.ID)
	m.logger.Warn("session evicted", "session_id", oldest.ID, "last_active", oldestAt)
}

func (m *Manager) removeLocked(id string) {
	delete(m.sessions, id)
	metrics.CacheBytes.DeleteLabelValues(id)
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
}

// Get retrieves a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session. It reports whether the session existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	m.removeLocked(id)
	m.logger.Info("session deleted", "session_id", id)
	return true
}

// List returns all sessions, most recent first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// CleanupStale removes sessions idle for longer than the TTL and returns how
// many were removed. A zero TTL keeps everything.
func (m *Manager) CleanupStale() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.lastActiveAt().Before(cutoff) {
			m.removeLocked(id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("stale sessions removed", "count", removed)
	}
	return removed
}

// ForEach runs fn for every session concurrently and returns the first error.
func (m *Manager) ForEach(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(finalizeConcurrency)
	for _, s := range m.List() {
		g.Go(func() error {
			return fn(ctx, s)
		})
	}
	return g.Wait()
}
