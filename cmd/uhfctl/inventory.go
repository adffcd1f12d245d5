package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/uhfsession/internal/ringchan"
	"github.com/srg/uhfsession/session"
)

type inventoryOptions struct {
	readerFlags
	duration time.Duration
	power    int
	format   string
}

func newInventoryCmd() *cobra.Command {
	opts := &inventoryOptions{}
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Stream tags read by a reader",
		Long: `Connect to a reader and run a tag inventory.

Each tag is printed the first time its EPC is read. When the inventory
ends (after --duration, or on Ctrl+C) a table of every tag with its read
count is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "table" && opts.format != "json" {
				return fmt.Errorf("invalid format '%s': must be one of [table json]", opts.format)
			}
			return withReader(cmd, &opts.readerFlags, func(ctx context.Context, a *app) error {
				return runInventory(ctx, a, opts)
			})
		},
	}

	opts.readerFlags.register(cmd)
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Inventory duration (0 until Ctrl+C)")
	cmd.Flags().IntVar(&opts.power, "power", 0, "Set transmit power before reading")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Summary format (table, json)")
	return cmd
}

func runInventory(ctx context.Context, a *app, opts *inventoryOptions) error {
	if opts.power > 0 {
		ok, err := a.med.SetPower(ctx, opts.power)
		if err != nil {
			return err
		}
		if !ok {
			a.out.warning("Reader refused power level %d, keeping the current one", opts.power)
		}
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	tags := ringchan.New[session.Tag](a.cfg.Session.StreamBuffer)
	defer tags.Close()

	if err := a.med.StartTagInventory(ctx, tags.Sink()); err != nil {
		return fmt.Errorf("failed to start inventory: %w", err)
	}
	a.out.status("Reading tags, press Ctrl+C to stop...")

	for done := false; !done; {
		select {
		case t := <-tags.C():
			a.out.tag(t)
		case <-ctx.Done():
			done = true
		}
	}

	if _, err := a.med.StopTagInventory(context.Background()); err != nil {
		a.logger.WithError(err).Warn("Stop inventory failed")
	}
	if m := tags.GetMetrics(); m.Overwritten > 0 {
		a.out.warning("%d tag events were dropped by the output buffer", m.Overwritten)
	}

	records, err := a.med.Tags(context.Background())
	if err != nil {
		return err
	}
	if opts.format == "json" {
		if records == nil {
			records = []session.Tag{}
		}
		return a.out.json(records)
	}
	a.out.linef("")
	return a.out.tags(records)
}
