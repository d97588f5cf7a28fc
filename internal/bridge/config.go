package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/progress"
)

// Policy decides what Submit does when an action is already queued.
type Policy uint8

// Supported submit policies.
const (
	// PolicyReject fails fast with ErrChannelFull.
	PolicyReject Policy = iota
	// PolicyBlock waits for the queued action to be taken by the worker.
	PolicyBlock
)

func (p Policy) String() string {
	if p == PolicyBlock {
		return "block"
	}
	return "reject"
}

// ParsePolicy accepts "reject" (or empty) and "block".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return PolicyReject, nil
	case "block":
		return PolicyBlock, nil
	default:
		return 0, fmt.Errorf("unknown submit policy %q", s)
	}
}

// Work performs the unit of background work behind a stage. Implementations
// must honor ctx; the worker cancels it when the stream is closed.
type Work interface {
	Run(ctx context.Context, stage Stage) error
}

// WorkFunc adapts a function to Work.
type WorkFunc func(ctx context.Context, stage Stage) error

// Run calls f.
func (f WorkFunc) Run(ctx context.Context, stage Stage) error {
	return f(ctx, stage)
}

// Config controls a single bridge instance.
//   - Work: stage implementation (defaults to work that returns immediately).
//   - Policy: submit behavior when the action slot is taken (default PolicyReject).
//   - StageTimeout: optional deadline per stage; exceeding it fails the stage.
//   - SessionID: identifier used in logs and progress records (default UUIDv7).
//   - Progress: optional non-blocking observer of lifecycle records.
//   - Logger: optional structured logger.
//   - Now: clock used for event timestamps (defaults to UTC wall time).
type Config struct {
	Work         Work
	Policy       Policy
	StageTimeout time.Duration
	SessionID    uuid.UUID
	Progress     progress.Emitter
	Logger       *zap.Logger
	Now          func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Work == nil {
		c.Work = WorkFunc(func(context.Context, Stage) error { return nil })
	}
	if c.SessionID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		c.SessionID = id
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}
