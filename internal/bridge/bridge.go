package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/progress"
)

type state uint8

const (
	stateUninitialized state = iota
	stateAwaitingHandshake
	stateIdle
	stateStageRunning
	stateCleaningUp
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateAwaitingHandshake:
		return "awaiting_handshake"
	case stateIdle:
		return "idle"
	case stateStageRunning:
		return "stage_running"
	case stateCleaningUp:
		return "cleaning_up"
	case stateTerminated:
		return "terminated"
	default:
		return "uninitialized"
	}
}

// Start spawns a bridge worker and returns its event stream and handle. It
// does not block. The handle is the same value delivered in the Ready event
// and rejects submissions with ErrNotReady until Ready has been read.
//
// Cancelling ctx terminates the worker the same way EventStream.Close does,
// except that events already emitted remain readable.
func Start(ctx context.Context, cfg Config) (*EventStream, *Handle) {
	cfg = cfg.withDefaults()
	wctx, cancel := context.WithCancel(ctx)

	events := make(chan Event, 1)
	actions := make(chan Action, 1)
	done := make(chan struct{})
	closed := make(chan struct{})

	handle := &Handle{actions: actions, closed: closed, done: done, policy: cfg.Policy}
	stream := &EventStream{
		id:     cfg.SessionID,
		events: events,
		handle: handle,
		closed: closed,
		cancel: cancel,
		done:   done,
	}
	w := &worker{
		cfg:     cfg,
		id:      cfg.SessionID,
		actions: actions,
		events:  events,
		handle:  handle,
		logger:  cfg.Logger.With(zap.String("session_id", cfg.SessionID.String())),
	}

	go func() {
		err := w.run(wctx)
		w.finish(err)
		stream.err = err
		close(done)
		close(events)
		cancel()
	}()
	return stream, handle
}

type worker struct {
	cfg     Config
	id      uuid.UUID
	actions <-chan Action
	events  chan<- Event
	handle  *Handle
	logger  *zap.Logger

	state      state
	seq        uint64
	readySent  bool
	open       Stage
	stageStart time.Time
	started    time.Time
}

func (w *worker) run(ctx context.Context) error {
	w.started = w.cfg.Now()
	w.transition(stateAwaitingHandshake)
	if err := w.emit(ctx, Event{Kind: EventReady, Handle: w.handle}); err != nil {
		return err
	}
	w.transition(stateIdle)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case action := <-w.actions:
			w.logger.Debug("action received", zap.Stringer("action", action))
			switch action {
			case ActionStartStageA, ActionStartStageB:
				if err := w.runStage(ctx, action.stage()); err != nil {
					return err
				}
			case ActionCleanup:
				return w.cleanup(ctx)
			default:
				panic(fmt.Sprintf("bridge: unhandled action %s", action))
			}
		}
	}
}

func (w *worker) runStage(ctx context.Context, stage Stage) error {
	w.transition(stateStageRunning)
	if err := w.emit(ctx, Event{Kind: startedKind(stage)}); err != nil {
		return err
	}
	workErr := w.work(ctx, stage)
	if err := ctx.Err(); err != nil {
		return err
	}
	evt := Event{Kind: finishedKind(stage, workErr != nil)}
	if workErr != nil {
		evt.Err = workErr
		w.logger.Warn("stage failed", zap.Stringer("stage", stage), zap.Error(workErr))
	}
	if err := w.emit(ctx, evt); err != nil {
		return err
	}
	w.transition(stateIdle)
	return nil
}

func (w *worker) cleanup(ctx context.Context) error {
	w.transition(stateCleaningUp)
	if err := w.emit(ctx, Event{Kind: EventCleanupStarted}); err != nil {
		return err
	}
	workErr := w.work(ctx, StageCleanup)
	if err := ctx.Err(); err != nil {
		return err
	}
	if workErr == nil {
		w.open = 0
		w.transition(stateTerminated)
		return nil
	}
	if err := w.emit(ctx, Event{Kind: EventCleanupFailed, Err: workErr}); err != nil {
		return err
	}
	w.transition(stateTerminated)
	return fmt.Errorf("%w: %w", ErrCleanupFailed, workErr)
}

// work runs one stage, converting panics and deadline overruns into a
// *StageError.
func (w *worker) work(ctx context.Context, stage Stage) (err error) {
	if w.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.StageTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := w.cfg.Work.Run(ctx, stage); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// emit stamps and delivers an event, blocking until the consumer has room or
// the stream is cancelled.
func (w *worker) emit(ctx context.Context, evt Event) error {
	w.admit(evt.Kind)
	w.seq++
	evt.Seq = w.seq
	evt.At = w.cfg.Now()
	if evt.Kind.Started() {
		w.stageStart = evt.At
	}
	select {
	case w.events <- evt:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.observe(evt)
	return nil
}

// admit enforces event ordering. A violation is a bug in this package.
func (w *worker) admit(kind EventKind) {
	switch {
	case kind == EventReady:
		if w.readySent {
			panic("bridge: ready emitted twice")
		}
		w.readySent = true
	case !w.readySent:
		panic(fmt.Sprintf("bridge: %s emitted before ready", kind))
	case kind.Started():
		if w.open != 0 {
			panic(fmt.Sprintf("bridge: %s emitted while stage %s is open", kind, w.open))
		}
		w.open = kind.Stage()
	default:
		if w.open != kind.Stage() {
			panic(fmt.Sprintf("bridge: %s emitted without matching start", kind))
		}
		w.open = 0
	}
}

// legal lists the states each state may move to.
var legal = map[state][]state{
	stateUninitialized:     {stateAwaitingHandshake},
	stateAwaitingHandshake: {stateIdle},
	stateIdle:              {stateStageRunning, stateCleaningUp},
	stateStageRunning:      {stateIdle},
	stateCleaningUp:        {stateTerminated},
}

// transition moves the worker to next, panicking on a move the state
// machine does not allow. Terminated is absorbing.
func (w *worker) transition(next state) {
	if !slices.Contains(legal[w.state], next) {
		panic(fmt.Sprintf("bridge: illegal transition %s -> %s", w.state, next))
	}
	w.logger.Debug("bridge state", zap.Stringer("from", w.state), zap.Stringer("to", next))
	w.state = next
}

func (w *worker) observe(evt Event) {
	if w.cfg.Progress == nil {
		return
	}
	rec := progress.Record{
		SessionID: progress.UUIDToBytes(w.id),
		TS:        evt.At,
		Seq:       evt.Seq,
		Stage:     evt.Kind.Stage().String(),
	}
	switch {
	case evt.Kind == EventReady:
		rec.Kind = progress.KindSessionStart
		rec.Stage = ""
	case evt.Kind.Started():
		rec.Kind = progress.KindStageStart
	case evt.Kind.Failed():
		rec.Kind = progress.KindStageError
		rec.Dur = evt.At.Sub(w.stageStart)
		rec.Note = evt.Err.Error()
	default:
		rec.Kind = progress.KindStageDone
		rec.Dur = evt.At.Sub(w.stageStart)
	}
	w.cfg.Progress.Emit(rec)
}

// finish records the end of the session for observers and logs.
func (w *worker) finish(err error) {
	result := progress.ResultSuccess
	switch {
	case errors.Is(err, ErrCleanupFailed):
		result = progress.ResultFailed
	case err != nil:
		result = progress.ResultCanceled
	}
	w.state = stateTerminated
	w.logger.Debug("bridge terminated", zap.String("result", string(result)), zap.Error(err))
	if w.cfg.Progress == nil {
		return
	}
	now := w.cfg.Now()
	rec := progress.Record{
		SessionID: progress.UUIDToBytes(w.id),
		TS:        now,
		Seq:       w.seq,
		Kind:      progress.KindSessionEnd,
		Result:    result,
		Dur:       now.Sub(w.started),
	}
	if err != nil {
		rec.Note = err.Error()
	}
	w.cfg.Progress.Emit(rec)
}
