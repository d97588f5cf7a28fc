package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/progress"
	blob "github.com/JakeFAU/stagebridge/internal/storage"
)

// BlobStore is the subset of the blob backends used for transcripts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// ArchiveConfig controls where and how much of each transcript is kept.
type ArchiveConfig struct {
	// Prefix is prepended to every object path.
	Prefix string
	// MaxRecords caps the records buffered per session (default 4096).
	// Overflowing records are counted in the transcript trailer.
	MaxRecords int
}

const defaultArchiveMaxRecords = 4096

// ArchiveSink buffers each session's records and writes them as one NDJSON
// object when the session ends.
type ArchiveSink struct {
	blobs  BlobStore
	cfg    ArchiveConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[[16]byte]*transcript
}

type transcript struct {
	lines     []transcriptLine
	truncated int
}

type transcriptLine struct {
	Seq    uint64    `json:"seq"`
	Kind   string    `json:"kind"`
	Stage  string    `json:"stage,omitempty"`
	At     time.Time `json:"at"`
	DurMS  int64     `json:"dur_ms,omitempty"`
	Result string    `json:"result,omitempty"`
	Note   string    `json:"note,omitempty"`
}

// NewArchiveSink constructs a sink writing into blobs.
func NewArchiveSink(blobs BlobStore, cfg ArchiveConfig, logger *zap.Logger) (*ArchiveSink, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultArchiveMaxRecords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{
		blobs:    blobs,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[[16]byte]*transcript),
	}, nil
}

// Consume appends records to their session transcript and uploads the
// transcripts of sessions that ended in this batch.
func (s *ArchiveSink) Consume(ctx context.Context, batch []progress.Record) error {
	var finished [][16]byte
	s.mu.Lock()
	for _, rec := range batch {
		t := s.sessions[rec.SessionID]
		if t == nil {
			t = &transcript{}
			s.sessions[rec.SessionID] = t
		}
		if len(t.lines) < s.cfg.MaxRecords || rec.Kind == progress.KindSessionEnd {
			t.lines = append(t.lines, lineFor(rec))
		} else {
			t.truncated++
		}
		if rec.Kind == progress.KindSessionEnd {
			finished = append(finished, rec.SessionID)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range finished {
		if err := s.upload(ctx, id, "ndjson"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close uploads transcripts of sessions that never ended with a ".partial"
// suffix.
func (s *ArchiveSink) Close(ctx context.Context) error {
	s.mu.Lock()
	ids := make([][16]byte, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := s.upload(ctx, id, "partial.ndjson"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ObjectPath reports the object path used for a session transcript.
func (s *ArchiveSink) ObjectPath(id uuid.UUID, ext string) string {
	return path.Join(s.cfg.Prefix, "sessions", id.String()+"."+ext)
}

func (s *ArchiveSink) upload(ctx context.Context, id [16]byte, ext string) error {
	s.mu.Lock()
	t := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if t == nil {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, line := range t.lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode transcript line: %w", err)
		}
	}
	if t.truncated > 0 {
		trailer := map[string]int{"truncated": t.truncated}
		if err := enc.Encode(trailer); err != nil {
			return fmt.Errorf("encode transcript trailer: %w", err)
		}
	}

	sessionID := uuid.UUID(id)
	uri, err := s.blobs.PutObject(ctx, s.ObjectPath(sessionID, ext), blob.NDJSON, &buf)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", sessionID, err)
	}
	s.logger.Debug("session transcript archived", zap.String("session_id", sessionID.String()), zap.String("uri", uri))
	return nil
}

func lineFor(rec progress.Record) transcriptLine {
	return transcriptLine{
		Seq:    rec.Seq,
		Kind:   string(rec.Kind),
		Stage:  rec.Stage,
		At:     rec.TS.UTC(),
		DurMS:  rec.Dur.Milliseconds(),
		Result: string(rec.Result),
		Note:   rec.Note,
	}
}
