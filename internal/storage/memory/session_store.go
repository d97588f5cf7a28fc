package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/stagebridge/internal/store"
)

// SessionStore implements store.SessionRepository in-memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]store.SessionRun
	stages   map[uuid.UUID][]store.StageRun
}

var _ store.SessionRepository = (*SessionStore)(nil)

// NewSessionStore constructs an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]store.SessionRun),
		stages:   make(map[uuid.UUID][]store.StageRun),
	}
}

// UpsertSessionStart records a running session. Repeated calls keep the
// earliest start time.
func (s *SessionStore) UpsertSessionStart(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.sessions[id]
	if ok {
		if startedAt.Before(run.StartedAt) {
			run.StartedAt = startedAt
			s.sessions[id] = run
		}
		return nil
	}
	s.sessions[id] = store.SessionRun{ID: id, StartedAt: startedAt, Status: store.SessionRunning}
	return nil
}

// CompleteSession marks the session finished. Sessions that never reported a
// start are created so history stays complete.
func (s *SessionStore) CompleteSession(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.SessionStatus,
	events int64,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.sessions[id]
	if !ok {
		run = store.SessionRun{ID: id, StartedAt: finishedAt}
	}
	run.FinishedAt = pointerTime(finishedAt)
	run.Status = status
	run.Events = events
	run.ErrorMessage = copyString(errMsg)
	s.sessions[id] = run
	return nil
}

// RecordStage appends a stage attempt.
func (s *SessionStore) RecordStage(_ context.Context, run store.StageRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ErrorMessage = copyString(run.ErrorMessage)
	s.stages[run.SessionID] = append(s.stages[run.SessionID], run)
	return nil
}

// GetSession fetches a session by ID.
func (s *SessionStore) GetSession(_ context.Context, id uuid.UUID) (store.SessionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.sessions[id]
	if !ok {
		return store.SessionRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListSessions returns sessions newest first.
func (s *SessionStore) ListSessions(
	_ context.Context,
	status *store.SessionStatus,
	limit,
	offset int,
) ([]store.SessionRun, error) {
	s.mu.RLock()
	runs := make([]store.SessionRun, 0, len(s.sessions))
	for _, run := range s.sessions {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	slices.SortFunc(runs, func(a, b store.SessionRun) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return page(runs, limit, offset), nil
}

// ListStages returns a session's stage attempts in sequence order.
func (s *SessionStore) ListStages(_ context.Context, id uuid.UUID, limit, offset int) ([]store.StageRun, error) {
	s.mu.RLock()
	stages := slices.Clone(s.stages[id])
	s.mu.RUnlock()

	slices.SortFunc(stages, func(a, b store.StageRun) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return page(stages, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
