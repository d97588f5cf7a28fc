package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/progress"
	"github.com/JakeFAU/stagebridge/internal/store"
)

// StoreSink persists session lifecycles and stage outcomes via a
// store.SessionRepository.
type StoreSink struct {
	repo   store.SessionRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.SessionRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards records to the repository in order. It respects ctx
// deadlines and stops at the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Record) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, rec := range batch {
		if err := s.consumeRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) consumeRecord(ctx context.Context, rec progress.Record) error {
	id := rec.SessionUUID()
	switch rec.Kind {
	case progress.KindSessionStart:
		if err := s.repo.UpsertSessionStart(ctx, id, rec.TS); err != nil {
			return fmt.Errorf("upsert session start: %w", err)
		}
	case progress.KindStageDone, progress.KindStageError:
		run := store.StageRun{
			SessionID:  id,
			Stage:      rec.Stage,
			Seq:        int64(rec.Seq),
			FinishedAt: rec.TS,
			Duration:   rec.Dur,
			Status:     store.StageDone,
		}
		if rec.Kind == progress.KindStageError {
			run.Status = store.StageFailed
			run.ErrorMessage = notePtr(rec.Note)
		}
		if err := s.repo.RecordStage(ctx, run); err != nil {
			return fmt.Errorf("record stage: %w", err)
		}
	case progress.KindSessionEnd:
		status := sessionStatus(rec.Result)
		if err := s.repo.CompleteSession(ctx, id, rec.TS, status, int64(rec.Seq), notePtr(rec.Note)); err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		s.logger.Debug("session persisted", zap.String("session_id", id.String()), zap.String("status", string(status)))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func sessionStatus(result progress.Result) store.SessionStatus {
	switch result {
	case progress.ResultSuccess:
		return store.SessionSuccess
	case progress.ResultFailed:
		return store.SessionFailed
	default:
		return store.SessionCanceled
	}
}

func notePtr(note string) *string {
	if note == "" {
		return nil
	}
	return &note
}
