// Package postgres provides Postgres-backed session history.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/stagebridge/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Schema creates the tables used by SessionStore.
const Schema = `
CREATE TABLE IF NOT EXISTS session_runs (
	id            uuid PRIMARY KEY,
	started_at    timestamptz NOT NULL,
	finished_at   timestamptz,
	status        text NOT NULL,
	error_message text,
	events        bigint NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS session_runs_started_at_idx ON session_runs (started_at DESC);
CREATE TABLE IF NOT EXISTS stage_runs (
	session_id    uuid NOT NULL REFERENCES session_runs (id) ON DELETE CASCADE,
	seq           bigint NOT NULL,
	stage         text NOT NULL,
	finished_at   timestamptz NOT NULL,
	duration_ms   bigint NOT NULL,
	status        text NOT NULL,
	error_message text,
	PRIMARY KEY (session_id, seq)
);`

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// SessionStore implements store.SessionRepository using Postgres.
type SessionStore struct {
	pool pool
}

var _ store.SessionRepository = (*SessionStore)(nil)

// NewSessionStore connects a pool using the provided config.
func NewSessionStore(ctx context.Context, cfg Config) (*SessionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SessionStore{pool: p}, nil
}

// NewSessionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSessionStoreWithPool(p pool) (*SessionStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SessionStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *SessionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the session tables when they are missing.
func (s *SessionStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate session schema: %w", err)
	}
	return nil
}

// UpsertSessionStart inserts a running session or keeps the earliest start.
func (s *SessionStore) UpsertSessionStart(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO session_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET started_at = LEAST(session_runs.started_at, EXCLUDED.started_at);
	`
	if _, err := s.pool.Exec(ctx, query, id, startedAt, store.SessionRunning); err != nil {
		return fmt.Errorf("failed to upsert session start: %w", err)
	}
	return nil
}

// CompleteSession marks a session finished. A session whose start was never
// recorded is inserted with finishedAt as its start.
func (s *SessionStore) CompleteSession(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.SessionStatus,
	events int64,
	errMsg *string,
) error {
	query := `
		INSERT INTO session_runs (id, started_at, finished_at, status, events, error_message)
		VALUES ($1, $2, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			events = EXCLUDED.events,
			error_message = EXCLUDED.error_message;
	`
	if _, err := s.pool.Exec(ctx, query, id, finishedAt, status, events, errMsg); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	return nil
}

// RecordStage inserts one finished stage attempt. Replays of the same
// sequence number are ignored.
func (s *SessionStore) RecordStage(ctx context.Context, run store.StageRun) error {
	query := `
		INSERT INTO stage_runs (session_id, seq, stage, finished_at, duration_ms, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, seq) DO NOTHING;
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		run.SessionID,
		run.Seq,
		run.Stage,
		run.FinishedAt,
		run.Duration.Milliseconds(),
		run.Status,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage: %w", err)
	}
	return nil
}

// GetSession retrieves a single session by its ID.
func (s *SessionStore) GetSession(ctx context.Context, id uuid.UUID) (store.SessionRun, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message, events
		FROM session_runs
		WHERE id = $1;
	`
	run, err := scanSession(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.SessionRun{}, store.ErrNotFound
		}
		return store.SessionRun{}, fmt.Errorf("failed to get session: %w", err)
	}
	return run, nil
}

// ListSessions retrieves sessions newest first, with optional status filtering.
func (s *SessionStore) ListSessions(
	ctx context.Context,
	status *store.SessionStatus,
	limit,
	offset int,
) ([]store.SessionRun, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message, events
		FROM session_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	runs := []store.SessionRun{}
	for rows.Next() {
		run, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return runs, nil
}

// ListStages retrieves the stage attempts of a session in sequence order.
func (s *SessionStore) ListStages(ctx context.Context, id uuid.UUID, limit, offset int) ([]store.StageRun, error) {
	query := `
		SELECT session_id, seq, stage, finished_at, duration_ms, status, error_message
		FROM stage_runs
		WHERE session_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	stages := []store.StageRun{}
	for rows.Next() {
		var (
			run        store.StageRun
			durationMS int64
		)
		err := rows.Scan(
			&run.SessionID,
			&run.Seq,
			&run.Stage,
			&run.FinishedAt,
			&durationMS,
			&run.Status,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage row: %w", err)
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		stages = append(stages, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stage rows: %w", err)
	}
	return stages, nil
}

func scanSession(row pgx.Row) (store.SessionRun, error) {
	var run store.SessionRun
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
		&run.Events,
	)
	return run, err
}
