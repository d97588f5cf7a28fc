package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/progress"
)

// SessionNotice is the JSON payload published when a session terminates.
type SessionNotice struct {
	SessionID  string    `json:"session_id"`
	Result     string    `json:"result"`
	Events     uint64    `json:"events"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// PubSubSink publishes a SessionNotice for every session end record.
type PubSubSink struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSubSink wraps an existing topic. The sink owns the topic's publish
// goroutines and stops them on Close.
func NewPubSubSink(topic *pubsub.Topic, logger *zap.Logger) (*PubSubSink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{topic: topic, logger: logger}, nil
}

// Consume publishes all session end notices in the batch and waits for the
// server acknowledgements.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Record) error {
	results := make([]*pubsub.PublishResult, 0, 1)
	for _, rec := range batch {
		if rec.Kind != progress.KindSessionEnd {
			continue
		}
		data, err := json.Marshal(noticeFor(rec))
		if err != nil {
			return fmt.Errorf("marshal session notice: %w", err)
		}
		results = append(results, s.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"session_id": rec.SessionUUID().String(),
				"result":     string(rec.Result),
			},
		}))
	}
	var errs []error
	for _, res := range results {
		id, err := res.Get(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish session notice: %w", err))
			continue
		}
		s.logger.Debug("session notice published", zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close flushes pending publishes and stops the topic.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}

func noticeFor(rec progress.Record) SessionNotice {
	return SessionNotice{
		SessionID:  rec.SessionUUID().String(),
		Result:     string(rec.Result),
		Events:     rec.Seq,
		DurationMS: rec.Dur.Milliseconds(),
		FinishedAt: rec.TS.UTC(),
		Error:      rec.Note,
	}
}
