package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// readerFlags select and reach a reader; most commands share them.
type readerFlags struct {
	address string
	timeout time.Duration
}

func (f *readerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.address, "address", "a", "", "Reader address (default: first reader found)")
	cmd.Flags().DurationVarP(&f.timeout, "timeout", "t", 0, "How long to look for the reader (default: config scan_timeout)")
}

func (f *readerFlags) scanTimeout(a *app) time.Duration {
	if f.timeout > 0 {
		return f.timeout
	}
	return a.cfg.Driver.BLE.ScanTimeout
}

// withReader connects to the selected reader, runs fn and disconnects.
func withReader(cmd *cobra.Command, f *readerFlags, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.connect(ctx, f.address, f.scanTimeout(a)); err != nil {
		return err
	}
	defer a.disconnect()

	return fn(ctx, a)
}

func newConnectCmd() *cobra.Command {
	f := &readerFlags{}
	cmd := &cobra.Command{
		Use:   "connect [address]",
		Short: "Connect to a reader and show its status",
		Long: `Connect to a reader, report its battery level and transmit power, then disconnect.

Without an address the first reader discovered is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.address = args[0]
			}
			return withReader(cmd, f, func(ctx context.Context, a *app) error {
				battery, err := a.med.GetBatteryLevel(ctx)
				if err != nil {
					return err
				}
				power, err := a.med.GetPower(ctx)
				if err != nil {
					return err
				}
				a.out.linef("Battery: %d%%", battery)
				a.out.linef("Power:   %d", power)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}
