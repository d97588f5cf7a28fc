package bridge

import (
	"fmt"
	"time"
)

// EventKind tags an Event.
type EventKind uint8

// Event kinds emitted by the worker, in the order a full session produces them.
const (
	EventReady EventKind = iota + 1
	EventStageAStarted
	EventStageADone
	EventStageAFailed
	EventStageBStarted
	EventStageBDone
	EventStageBFailed
	EventCleanupStarted
	EventCleanupFailed
)

var eventNames = map[EventKind]string{
	EventReady:          "ready",
	EventStageAStarted:  "stage_a_started",
	EventStageADone:     "stage_a_done",
	EventStageAFailed:   "stage_a_failed",
	EventStageBStarted:  "stage_b_started",
	EventStageBDone:     "stage_b_done",
	EventStageBFailed:   "stage_b_failed",
	EventCleanupStarted: "cleanup_started",
	EventCleanupFailed:  "cleanup_failed",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Stage returns the stage an event belongs to, or zero for Ready.
func (k EventKind) Stage() Stage {
	switch k {
	case EventStageAStarted, EventStageADone, EventStageAFailed:
		return StageA
	case EventStageBStarted, EventStageBDone, EventStageBFailed:
		return StageB
	case EventCleanupStarted, EventCleanupFailed:
		return StageCleanup
	default:
		return 0
	}
}

// Started reports whether k opens a stage.
func (k EventKind) Started() bool {
	return k == EventStageAStarted || k == EventStageBStarted || k == EventCleanupStarted
}

// Failed reports whether k reports a work failure.
func (k EventKind) Failed() bool {
	return k == EventStageAFailed || k == EventStageBFailed || k == EventCleanupFailed
}

// Event is one lifecycle notification from the worker.
type Event struct {
	// Kind identifies the lifecycle step.
	Kind EventKind
	// Seq starts at 1 for Ready and increases by one per event.
	Seq uint64
	// At is the emission time.
	At time.Time
	// Handle is set only on the Ready event.
	Handle *Handle
	// Err is set on failure events and wraps a *StageError.
	Err error
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("#%d %s: %v", e.Seq, e.Kind, e.Err)
	}
	return fmt.Sprintf("#%d %s", e.Seq, e.Kind)
}

func startedKind(s Stage) EventKind {
	switch s {
	case StageA:
		return EventStageAStarted
	case StageB:
		return EventStageBStarted
	default:
		return EventCleanupStarted
	}
}

// finishedKind returns the event closing stage s. Cleanup success has no event:
// the stream simply ends.
func finishedKind(s Stage, failed bool) EventKind {
	switch {
	case s == StageA && failed:
		return EventStageAFailed
	case s == StageA:
		return EventStageADone
	case s == StageB && failed:
		return EventStageBFailed
	case s == StageB:
		return EventStageBDone
	default:
		return EventCleanupFailed
	}
}
