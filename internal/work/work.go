package work

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/bridge"
)

// Config combines the simulated plan with admission limits.
type Config struct {
	Plan   PlanConfig
	Limits LimiterConfig
}

// New builds the Work shared by every bridge in the process. Limits apply
// across sessions because the returned value owns a single Limiter.
func New(cfg Config, logger *zap.Logger) (bridge.Work, error) {
	plan, err := NewPlan(cfg.Plan, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Limits.RPS <= 0 {
		return plan, nil
	}
	return NewThrottled(plan, NewLimiter(cfg.Limits), logger), nil
}
