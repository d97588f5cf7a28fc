package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/stagebridge/internal/progress"
)

// PrometheusSink exports bridge session and stage metrics via Prometheus.
type PrometheusSink struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	sessionRuntime    *prometheus.HistogramVec

	stagesStarted   *prometheus.CounterVec
	stagesCompleted *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_started_total",
			Help: "Total bridge sessions that reached Ready.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_sessions_completed_total",
			Help: "Total bridge sessions terminated partitioned by result.",
		}, []string{"result"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_sessions_active",
			Help: "Current number of live bridge sessions.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_session_runtime_seconds",
			Help:    "Wall time from Ready to termination.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"result"}),
		stagesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_stage_started_total",
			Help: "Stage executions started partitioned by stage.",
		}, []string{"stage"}),
		stagesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_stage_completed_total",
			Help: "Stage executions finished partitioned by stage and result.",
		}, []string{"stage", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_stage_duration_seconds",
			Help:    "Stage execution time partitioned by stage.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsCompleted,
		s.sessionsActive,
		s.sessionRuntime,
		s.stagesStarted,
		s.stagesCompleted,
		s.stageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Record) error {
	for _, rec := range batch {
		s.consumeRecord(rec)
	}
	return nil
}

func (s *PrometheusSink) consumeRecord(rec progress.Record) {
	switch rec.Kind {
	case progress.KindSessionStart:
		s.sessionsStarted.Inc()
		if s.tracker.start(rec.SessionID) {
			s.sessionsActive.Inc()
		}
	case progress.KindSessionEnd:
		s.sessionsCompleted.WithLabelValues(string(rec.Result)).Inc()
		if rec.Dur > 0 {
			s.sessionRuntime.WithLabelValues(string(rec.Result)).Observe(rec.Dur.Seconds())
		}
		if s.tracker.complete(rec.SessionID) {
			s.sessionsActive.Dec()
		}
	case progress.KindStageStart:
		s.stagesStarted.WithLabelValues(rec.Stage).Inc()
	case progress.KindStageDone:
		s.observeStage(rec, "done")
	case progress.KindStageError:
		s.observeStage(rec, "failed")
	}
}

func (s *PrometheusSink) observeStage(rec progress.Record, result string) {
	s.stagesCompleted.WithLabelValues(rec.Stage, result).Inc()
	if rec.Dur > 0 {
		s.stageDuration.WithLabelValues(rec.Stage).Observe(rec.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu     sync.Mutex
	active map[[16]byte]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{active: make(map[[16]byte]struct{})}
}

func (t *sessionTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *sessionTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
