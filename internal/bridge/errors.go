package bridge

import (
	"errors"
	"fmt"
)

// Errors returned synchronously by Handle.Submit.
var (
	// ErrNotReady is returned when the consumer has not yet read the Ready event.
	ErrNotReady = errors.New("bridge: handle not ready")
	// ErrClosed is returned once the bridge has terminated or cleanup was requested.
	ErrClosed = errors.New("bridge: closed")
	// ErrChannelFull is returned under PolicyReject when an action is already queued.
	ErrChannelFull = errors.New("bridge: action channel full")
	// ErrUnknownAction is returned for values outside the Action enumeration.
	ErrUnknownAction = errors.New("bridge: unknown action")
)

// ErrCleanupFailed is reported by EventStream.Err when cleanup work failed.
var ErrCleanupFailed = errors.New("bridge: cleanup failed")

// StageError wraps a work failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
