package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("session record not found")

// SessionStatus mirrors the session_runs status column.
type SessionStatus string

// Session statuses persisted in session_runs.status.
const (
	SessionRunning  SessionStatus = "running"
	SessionSuccess  SessionStatus = "success"
	SessionFailed   SessionStatus = "failed"
	SessionCanceled SessionStatus = "canceled"
)

// Valid reports whether s is one of the persisted statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionRunning, SessionSuccess, SessionFailed, SessionCanceled:
		return true
	default:
		return false
	}
}

// StageStatus mirrors the stage_runs status column.
type StageStatus string

// Stage outcomes persisted in stage_runs.status.
const (
	StageDone   StageStatus = "done"
	StageFailed StageStatus = "failed"
)

// SessionRun models the session_runs table for API responses.
type SessionRun struct {
	// ID is the bridge session identifier.
	ID uuid.UUID
	// StartedAt is the Ready timestamp.
	StartedAt time.Time
	// FinishedAt is nil while the bridge is running.
	FinishedAt *time.Time
	// Status is running/success/failed/canceled.
	Status SessionStatus
	// ErrorMessage holds the termination cause for failed or canceled sessions.
	ErrorMessage *string
	// Events is the last stream sequence number observed.
	Events int64
}

// StageRun records one finished stage attempt.
type StageRun struct {
	SessionID    uuid.UUID
	Stage        string
	Seq          int64
	FinishedAt   time.Time
	Duration     time.Duration
	Status       StageStatus
	ErrorMessage *string
}

// SessionRepository persists session lifecycles and stage outcomes.
type SessionRepository interface {
	// UpsertSessionStart inserts (or idempotently updates) the started_at timestamp.
	UpsertSessionStart(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	// CompleteSession marks the session finished.
	CompleteSession(
		ctx context.Context,
		id uuid.UUID,
		finishedAt time.Time,
		status SessionStatus,
		events int64,
		errMsg *string,
	) error
	// RecordStage appends a finished stage attempt.
	RecordStage(ctx context.Context, run StageRun) error

	// GetSession loads a single session or returns ErrNotFound.
	GetSession(ctx context.Context, id uuid.UUID) (SessionRun, error)
	// ListSessions returns sessions filtered by optional status plus limit/offset,
	// newest first.
	ListSessions(ctx context.Context, status *SessionStatus, limit, offset int) ([]SessionRun, error)
	// ListStages returns the stage attempts of one session in sequence order.
	ListStages(ctx context.Context, id uuid.UUID, limit, offset int) ([]StageRun, error)
}
