package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(maxSessions int, ttl time.Duration, now *time.Time) *Manager {
	m := NewManager(maxSessions, ttl, func(id string, at time.Time) *Session {
		return newSession(id, 1<<20, 0.75, at)
	}, nil)
	m.now = func() time.Time { return *now }
	return m
}

func TestManagerCreateGetDelete(t *testing.T) {
	now := clock
	m := newTestManager(4, 0, &now)

	s := m.Create()
	require.NotEmpty(t, s.ID)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Same(t, s, m.Open(s.ID), "open returns the live session")

	assert.True(t, m.Delete(s.ID))
	assert.False(t, m.Delete(s.ID))
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerEvictsLeastRecentlyActive(t *testing.T) {
	now := clock
	m := newTestManager(2, 0, &now)

	a := m.Open("a")
	now = now.Add(time.Minute)
	b := m.Open("b")
	now = now.Add(time.Minute)
	a.touch(now)

	m.Open("c")
	_, err := m.Get(b.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "b was idle longest")
	_, err = m.Get("a")
	assert.NoError(t, err)
	assert.Len(t, m.List(), 2)
}

func TestManagerCleanupStale(t *testing.T) {
	now := clock
	m := newTestManager(8, time.Hour, &now)

	m.Open("old")
	now = now.Add(50 * time.Minute)
	m.Open("fresh")
	now = now.Add(20 * time.Minute)

	assert.Equal(t, 1, m.CleanupStale())
	_, err := m.Get("old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get("fresh")
	assert.NoError(t, err)

	keep := newTestManager(8, 0, &now)
	keep.Open("x")
	now = now.Add(24 * time.Hour)
	assert.Zero(t, keep.CleanupStale(), "zero TTL keeps sessions")
}

func TestManagerListOrder(t *testing.T) {
	now := clock
	m := newTestManager(8, 0, &now)
	m.Open("first")
	now = now.Add(time.Second)
	m.Open("second")

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].ID)
	assert.Equal(t, "first", list[1].ID)
}

func TestManagerForEach(t *testing.T) {
	now := clock
	m := newTestManager(8, 0, &now)
	for _, id := range []string{"a", "b", "c"} {
		m.Open(id)
	}

	var visited atomic.Int32
	require.NoError(t, m.ForEach(context.Background(), func(_ context.Context, _ *Session) error {
		visited.Add(1)
		return nil
	}))
	assert.Equal(t, int32(3), visited.Load())

	boom := errors.New("boom")
	err := m.ForEach(context.Background(), func(_ context.Context, s *Session) error {
		if s.ID == "b" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}
