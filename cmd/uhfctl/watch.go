package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/uhfsession/internal/ringchan"
)

type watchOptions struct {
	readerFlags
	count int
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch reader connectivity",
		Long: `Connect to a reader and print its connection state every poll interval
(session.poll_interval, 10s by default) until Ctrl+C or until the link drops.
A link the reader drops on its own ends the watch as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd, &opts.readerFlags, func(ctx context.Context, a *app) error {
				return runWatch(ctx, a, opts)
			})
		},
	}

	opts.readerFlags.register(cmd)
	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "Stop after this many samples (0 for no limit)")
	return cmd
}

func runWatch(ctx context.Context, a *app, opts *watchOptions) error {
	states := ringchan.New[bool](a.cfg.Session.StreamBuffer)
	defer states.Close()

	if err := a.med.StartConnectivityPoll(ctx, states.Sink()); err != nil {
		return fmt.Errorf("failed to start connectivity poll: %w", err)
	}
	defer func() {
		if err := a.med.StopConnectivityPoll(context.Background()); err != nil {
			a.logger.WithError(err).Debug("Stop connectivity poll failed")
		}
	}()

	// the session stops the poll silently when the reader drops the link
	ticker := time.NewTicker(a.cfg.Session.PollInterval)
	defer ticker.Stop()

	a.out.status("Polling every %s...", a.cfg.Session.PollInterval)
	for n := 0; opts.count == 0 || n < opts.count; {
		select {
		case connected := <-states.C():
			stamp := time.Now().Format(time.TimeOnly)
			if !connected {
				a.out.warning("%s  disconnected", stamp)
				return nil
			}
			a.out.success("%s  connected", stamp)
			n++
		case <-ticker.C:
			st, err := a.med.State(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read session state: %w", err)
			}
			if !st.Polling {
				a.out.warning("%s  disconnected", time.Now().Format(time.TimeOnly))
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
