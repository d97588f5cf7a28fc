package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stagebridge/internal/bridge"
)

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := NewManager(context.Background(), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, m.Close(ctx))
	})
	return m
}

func TestManagerRemoteConsumerFlow(t *testing.T) {
	t.Parallel()

	m := newManager(t, Config{})
	s, err := m.Start()
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), s.ID.Version())
	require.Equal(t, 1, m.Len())

	ctx := context.Background()
	require.ErrorIs(t, m.Submit(ctx, s.ID, bridge.ActionStartStageA), bridge.ErrNotReady)

	stream, detach, err := m.Attach(s.ID)
	require.NoError(t, err)
	defer detach()
	require.True(t, s.Attached())

	_, _, err = m.Attach(s.ID)
	require.ErrorIs(t, err, ErrAttached)

	evt, ok := stream.Next()
	require.True(t, ok)
	require.Equal(t, bridge.EventReady, evt.Kind)

	require.NoError(t, m.Submit(ctx, s.ID, bridge.ActionCleanup))
	evt, ok = stream.Next()
	require.True(t, ok)
	require.Equal(t, bridge.EventCleanupStarted, evt.Kind)

	require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, m.Submit(ctx, s.ID, bridge.ActionStartStageA), ErrNotFound)
}

func TestManagerDetachCancelsBridge(t *testing.T) {
	t.Parallel()

	m := newManager(t, Config{})
	s, err := m.Start()
	require.NoError(t, err)

	_, detach, err := m.Attach(s.ID)
	require.NoError(t, err)
	detach()
	detach()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("detach did not stop the bridge")
	}
	require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestManagerCancel(t *testing.T) {
	t.Parallel()

	m := newManager(t, Config{})
	s, err := m.Start()
	require.NoError(t, err)

	require.NoError(t, m.Cancel(s.ID))
	<-s.Done()
	require.ErrorIs(t, m.Cancel(uuid.New()), ErrNotFound)
	_, _, err = m.Attach(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManagerLimit(t *testing.T) {
	t.Parallel()

	m := newManager(t, Config{MaxSessions: 1})
	_, err := m.Start()
	require.NoError(t, err)
	_, err = m.Start()
	require.ErrorIs(t, err, ErrLimit)
}

func TestManagerAttachTimeout(t *testing.T) {
	t.Parallel()

	m := newManager(t, Config{AttachTimeout: 20 * time.Millisecond})
	s, err := m.Start()
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("unattached session was not expired")
	}
}

func TestManagerCloseStopsEverything(t *testing.T) {
	t.Parallel()

	m := NewManager(context.Background(), Config{})
	first, err := m.Start()
	require.NoError(t, err)
	second, err := m.Start()
	require.NoError(t, err)

	require.False(t, m.Closing())
	require.NoError(t, m.Close(context.Background()))
	require.True(t, m.Closing())
	for _, s := range []*Session{first, second} {
		select {
		case <-s.Done():
		default:
			t.Fatal("session still running after Close")
		}
	}
	_, err = m.Start()
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestSubmitOutcomeLabels(t *testing.T) {
	t.Parallel()

	require.Equal(t, "accepted", outcome(nil))
	require.Equal(t, "not_ready", outcome(bridge.ErrNotReady))
	require.Equal(t, "channel_full", outcome(bridge.ErrChannelFull))
	require.Equal(t, "closed", outcome(bridge.ErrClosed))
	require.Equal(t, "unknown_action", outcome(bridge.ErrUnknownAction))
	require.Equal(t, "canceled", outcome(errors.New("context deadline exceeded")))
}
