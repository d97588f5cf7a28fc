package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Handle is the send-only capability for submitting actions. Exactly one
// Handle exists per bridge. It is safe for concurrent use.
type Handle struct {
	actions chan<- Action
	closed  <-chan struct{}
	done    <-chan struct{}
	policy  Policy

	ready   atomic.Bool
	mu      sync.Mutex
	closing bool
}

// Submit enqueues an action using the bridge's Policy.
func (h *Handle) Submit(action Action) error {
	return h.SubmitContext(context.Background(), action)
}

// SubmitContext is Submit with a context bounding the wait under PolicyBlock.
// Under PolicyReject ctx is ignored.
func (h *Handle) SubmitContext(ctx context.Context, action Action) error {
	if h == nil {
		return ErrNotReady
	}
	if !action.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if h.terminated() {
		return ErrClosed
	}
	if !h.ready.Load() {
		return ErrNotReady
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing || h.terminated() {
		return ErrClosed
	}
	if err := h.send(ctx, action); err != nil {
		return err
	}
	if action == ActionCleanup {
		h.closing = true
	}
	return nil
}

// terminated reports whether the stream was closed or the worker exited.
func (h *Handle) terminated() bool {
	select {
	case <-h.closed:
		return true
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) send(ctx context.Context, action Action) error {
	if h.policy == PolicyBlock {
		select {
		case h.actions <- action:
			return nil
		case <-h.closed:
			return ErrClosed
		case <-h.done:
			return ErrClosed
		case <-ctx.Done():
			return fmt.Errorf("submit %s: %w", action, ctx.Err())
		}
	}
	select {
	case h.actions <- action:
		return nil
	case <-h.closed:
		return ErrClosed
	case <-h.done:
		return ErrClosed
	default:
		return ErrChannelFull
	}
}
