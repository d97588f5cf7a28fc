package work

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/bridge"
)

// ErrInjected is returned by a Plan for stages configured to fail.
var ErrInjected = errors.New("injected stage failure")

// Plan simulates stage work by sleeping for a configured duration.
type Plan struct {
	durations map[bridge.Stage]time.Duration
	fail      map[bridge.Stage]bool
	logger    *zap.Logger
}

// PlanConfig describes the simulated work per stage.
//   - StageA, StageB, Cleanup: how long each stage takes.
//   - Fail: stage labels ("a", "b", "cleanup") that fail after their duration.
type PlanConfig struct {
	StageA  time.Duration
	StageB  time.Duration
	Cleanup time.Duration
	Fail    []string
}

// NewPlan validates cfg and builds a Plan.
func NewPlan(cfg PlanConfig, logger *zap.Logger) (*Plan, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Plan{
		durations: map[bridge.Stage]time.Duration{
			bridge.StageA:       cfg.StageA,
			bridge.StageB:       cfg.StageB,
			bridge.StageCleanup: cfg.Cleanup,
		},
		fail:   make(map[bridge.Stage]bool, len(cfg.Fail)),
		logger: logger,
	}
	for stage, d := range p.durations {
		if d < 0 {
			return nil, fmt.Errorf("stage %s duration must be >= 0", stage)
		}
	}
	for _, label := range cfg.Fail {
		stage, err := bridge.ParseStage(label)
		if err != nil {
			return nil, fmt.Errorf("fail stages: %w", err)
		}
		p.fail[stage] = true
	}
	return p, nil
}

// Run sleeps for the stage duration, then reports the configured outcome.
func (p *Plan) Run(ctx context.Context, stage bridge.Stage) error {
	if err := sleep(ctx, p.durations[stage]); err != nil {
		return err
	}
	if p.fail[stage] {
		p.logger.Debug("injecting stage failure", zap.Stringer("stage", stage))
		return ErrInjected
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
