package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/bridge"
)

// newRunCmd creates the 'run' subcommand: one in-process consumer that
// chains the stages as each completes and prints every event.
func newRunCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one session in-process and prints its events",
		Long: `Starts a single bridge and drives it the reference way: on ready it
starts stage A, when A is done it starts stage B, when B is done it requests
cleanup. Each event is printed as it arrives. A failed stage ends the run by
requesting cleanup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(cmd, appInstance)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return runChain(ctx, appInstance.BridgeConfig(), cmd.OutOrStdout(), appInstance.Logger())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abandon the session after this long (0 waits forever)")
	return cmd
}

// runChain consumes one bridge until its stream ends and reports how the
// session terminated.
func runChain(ctx context.Context, cfg bridge.Config, out io.Writer, logger *zap.Logger) error {
	stream, _ := bridge.Start(ctx, cfg)
	defer stream.Close()

	var handle *bridge.Handle
	for evt := range stream.All() {
		if _, err := fmt.Fprintln(out, evt); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		var next bridge.Action
		switch evt.Kind {
		case bridge.EventReady:
			handle = evt.Handle
			next = bridge.ActionStartStageA
		case bridge.EventStageADone:
			next = bridge.ActionStartStageB
		case bridge.EventStageBDone, bridge.EventStageAFailed, bridge.EventStageBFailed:
			next = bridge.ActionCleanup
		default:
			continue
		}
		if err := handle.SubmitContext(ctx, next); err != nil {
			logger.Warn("submit failed", zap.Stringer("action", next), zap.Error(err))
			return fmt.Errorf("submit %s: %w", next, err)
		}
	}

	select {
	case <-stream.Done():
	case <-ctx.Done():
		return fmt.Errorf("session %s: %w", stream.SessionID(), ctx.Err())
	}
	err := stream.Err()
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(out, "session %s finished\n", stream.SessionID())
		return nil
	case errors.Is(err, bridge.ErrCleanupFailed):
		return fmt.Errorf("session %s: %w", stream.SessionID(), err)
	default:
		return fmt.Errorf("session %s ended early: %w", stream.SessionID(), err)
	}
}
