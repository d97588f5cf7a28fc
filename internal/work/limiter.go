package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/stagebridge/internal/bridge"
	"github.com/JakeFAU/stagebridge/internal/metrics"
)

// LimiterConfig holds stage admission limits shared by every session.
type LimiterConfig struct {
	// RPS is the number of stage starts admitted per second per stage.
	// Zero or negative disables limiting.
	RPS   float64
	Burst int
}

// Limiter manages one token bucket per stage.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[bridge.Stage]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg LimiterConfig) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[bridge.Stage]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until the stage may start, respecting ctx. Waits longer than a
// millisecond are recorded as admission delay.
func (l *Limiter) Wait(ctx context.Context, stage bridge.Stage) error {
	l.mu.Lock()
	limiter, ok := l.limiters[stage]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[stage] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("stage admission wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveAdmissionDelay(stage.String(), d)
	}
	return nil
}

// Throttled gates another Work behind a Limiter.
type Throttled struct {
	next    bridge.Work
	limiter *Limiter
	logger  *zap.Logger
}

// NewThrottled wraps next. A nil limiter admits every stage immediately.
func NewThrottled(next bridge.Work, limiter *Limiter, logger *zap.Logger) *Throttled {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttled{next: next, limiter: limiter, logger: logger}
}

// Run waits for admission, then delegates to the wrapped Work.
func (t *Throttled) Run(ctx context.Context, stage bridge.Stage) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx, stage); err != nil {
			t.logger.Debug("stage admission abandoned", zap.Stringer("stage", stage), zap.Error(err))
			return err
		}
	}
	return t.next.Run(ctx, stage)
}
