// Package session keeps the registry of live bridges served to remote
// consumers. Each session has exactly one event stream; the first consumer to
// attach owns it, and detaching cancels the bridge.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/bridge"
	"github.com/JakeFAU/stagebridge/internal/metrics"
)

// Registry errors.
var (
	ErrNotFound     = errors.New("session not found")
	ErrAttached     = errors.New("session already has a consumer")
	ErrLimit        = errors.New("session limit reached")
	ErrShuttingDown = errors.New("session manager is shutting down")
)

// Config controls the Manager.
//   - Bridge: template for every bridge; SessionID is overwritten per session.
//   - MaxSessions: live session cap (default 1024).
//   - AttachTimeout: sessions nobody attaches to within this window are
//     cancelled. Zero disables the timer.
type Config struct {
	Bridge        bridge.Config
	MaxSessions   int
	AttachTimeout time.Duration
	Logger        *zap.Logger
}

// Session is one live bridge.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	stream *bridge.EventStream
	handle *bridge.Handle

	mu       sync.Mutex
	attached bool
	timer    *time.Timer
}

// Done is closed when the session's worker exits.
func (s *Session) Done() <-chan struct{} {
	return s.stream.Done()
}

// Attached reports whether a consumer owns the stream.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Manager owns all sessions of the process.
type Manager struct {
	cfg    Config
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	closed   bool
}

// NewManager builds a Manager whose bridges are children of ctx.
func NewManager(ctx context.Context, cfg Config) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Bridge.Logger == nil {
		cfg.Bridge.Logger = cfg.Logger
	}
	mctx, cancel := context.WithCancel(ctx)
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger,
		ctx:      mctx,
		cancel:   cancel,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Start spawns a new bridge and registers it.
func (m *Manager) Start() (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		return nil, ErrLimit
	}

	bcfg := m.cfg.Bridge
	bcfg.SessionID = id
	stream, handle := bridge.Start(m.ctx, bcfg)
	s := &Session{ID: id, CreatedAt: time.Now().UTC(), stream: stream, handle: handle}
	if m.cfg.AttachTimeout > 0 {
		s.timer = time.AfterFunc(m.cfg.AttachTimeout, func() { m.expire(s) })
	}
	m.sessions[id] = s

	m.wg.Add(1)
	go m.reap(s)
	m.logger.Info("session started", zap.String("session_id", id.String()))
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Closing reports whether Close has been called.
func (m *Manager) Closing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Attach hands the session's stream to a single consumer. The returned
// detach func closes the stream; the bridge does not outlive its consumer.
func (m *Manager) Attach(id uuid.UUID) (*bridge.EventStream, func(), error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	if s.attached {
		s.mu.Unlock()
		return nil, nil, ErrAttached
	}
	s.attached = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	metrics.IncAttachedStreams()
	var once sync.Once
	detach := func() {
		once.Do(func() {
			metrics.DecAttachedStreams()
			s.stream.Close()
		})
	}
	return s.stream, detach, nil
}

// Submit forwards an action to the session's handle and records the outcome.
func (m *Manager) Submit(ctx context.Context, id uuid.UUID, action bridge.Action) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	err = s.handle.SubmitContext(ctx, action)
	metrics.ObserveSubmission(action.String(), outcome(err))
	if err != nil {
		return fmt.Errorf("submit %s: %w", action, err)
	}
	return nil
}

// Cancel closes the session's stream. The session disappears once its worker
// has exited.
func (m *Manager) Cancel(id uuid.UUID) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.stream.Close()
	return nil
}

// Close cancels every session and waits for their workers to exit.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session manager close: %w", ctx.Err())
	}
}

func (m *Manager) reap(s *Session) {
	defer m.wg.Done()
	<-s.stream.Done()
	if s.timer != nil {
		s.timer.Stop()
	}
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	m.logger.Info("session ended", zap.String("session_id", s.ID.String()), zap.Error(s.stream.Err()))
}

func (m *Manager) expire(s *Session) {
	s.mu.Lock()
	attached := s.attached
	s.mu.Unlock()
	if attached {
		return
	}
	m.logger.Warn("session expired before a consumer attached", zap.String("session_id", s.ID.String()))
	s.stream.Close()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, bridge.ErrNotReady):
		return "not_ready"
	case errors.Is(err, bridge.ErrChannelFull):
		return "channel_full"
	case errors.Is(err, bridge.ErrClosed):
		return "closed"
	case errors.Is(err, bridge.ErrUnknownAction):
		return "unknown_action"
	default:
		return "canceled"
	}
}
