package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/uhfsession/internal/reader"
	"github.com/srg/uhfsession/internal/ringchan"
)

type scanOptions struct {
	duration time.Duration
	format   string
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for UHF readers",
		Long: `Scan for UR-series readers and list them.

Only peripherals whose name matches the configured prefix are shown.
Each reader is listed once per scan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Scan duration (default: config scan_timeout)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Output format (table, json)")
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", opts.format)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	duration := opts.duration
	if duration <= 0 {
		duration = a.cfg.Driver.BLE.ScanTimeout
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	found := ringchan.New[reader.Peripheral](a.cfg.Session.StreamBuffer)
	defer found.Close()

	if opts.format == "table" {
		a.out.status("Scanning for readers (%s)...", duration)
	}
	if err := a.med.StartScan(ctx, found.Sink()); err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}

	count := 0
	for done := false; !done; {
		select {
		case p := <-found.C():
			count++
			if opts.format == "table" {
				a.out.linef("  found %s (%s)", p.Name, p.Address)
			}
		case <-ctx.Done():
			done = true
		}
	}

	if _, err := a.med.StopScan(context.Background()); err != nil {
		a.logger.WithError(err).Warn("Stop scan failed")
	}

	devs, err := a.med.Peripherals(context.Background())
	if err != nil {
		return err
	}
	a.logger.WithField("device_count", count).Debug("Scan finished")

	if opts.format == "json" {
		if devs == nil {
			devs = []reader.Peripheral{}
		}
		return a.out.json(devs)
	}
	a.out.linef("")
	return a.out.peripherals(devs)
}
