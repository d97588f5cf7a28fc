package sinks

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/progress"
)

// LogSink emits structured logs for debugging bridge sessions.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each record in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Record) error {
	for _, rec := range batch {
		fields := []zap.Field{
			zap.String("session_id", uuid.UUID(rec.SessionID).String()),
			zap.String("kind", string(rec.Kind)),
			zap.Uint64("seq", rec.Seq),
		}
		if rec.Stage != "" {
			fields = append(fields, zap.String("stage", rec.Stage))
		}
		if rec.Dur > 0 {
			fields = append(fields, zap.Duration("dur", rec.Dur))
		}
		if rec.Result != "" {
			fields = append(fields, zap.String("result", string(rec.Result)))
		}
		if rec.Note != "" {
			fields = append(fields, zap.String("note", rec.Note))
		}
		s.logger.Info("progress record", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
