package bridge

import (
	"iter"
	"sync"

	"github.com/google/uuid"
)

// EventStream is the single-reader side of a bridge. It is not restartable.
type EventStream struct {
	id     uuid.UUID
	events <-chan Event
	handle *Handle

	closed    chan struct{}
	closeOnce sync.Once
	cancel    func()

	done chan struct{}
	err  error
}

// SessionID identifies the bridge instance behind the stream.
func (s *EventStream) SessionID() uuid.UUID {
	return s.id
}

// Next blocks until the next event is available. It returns false once the
// worker has terminated and every emitted event has been read, or once Close
// has been called; every later call returns false as well.
func (s *EventStream) Next() (Event, bool) {
	select {
	case <-s.closed:
		return Event{}, false
	default:
	}
	select {
	case evt, ok := <-s.events:
		if !ok {
			return Event{}, false
		}
		if evt.Kind == EventReady {
			s.handle.ready.Store(true)
		}
		return evt, true
	case <-s.closed:
		return Event{}, false
	}
}

// All ranges over the remaining events. Breaking out of the loop does not
// close the stream.
func (s *EventStream) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			evt, ok := s.Next()
			if !ok || !yield(evt) {
				return
			}
		}
	}
}

// Close abandons the stream. The worker observes it on its next emission or
// while waiting for actions and exits; events not yet read are discarded.
// Close is safe to call more than once and from any goroutine.
func (s *EventStream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
}

// Done is closed after the worker goroutine has exited.
func (s *EventStream) Done() <-chan struct{} {
	return s.done
}

// Err reports why the worker exited. It is nil until Done is closed and after
// a successful cleanup. A failed cleanup wraps ErrCleanupFailed; closure or
// parent cancellation reports the context error.
func (s *EventStream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
