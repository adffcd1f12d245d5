package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPowerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "power",
		Short: "Read or set the reader's transmit power",
	}
	cmd.AddCommand(newPowerGetCmd(), newPowerSetCmd())
	return cmd
}

func newPowerGetCmd() *cobra.Command {
	f := &readerFlags{}
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the current transmit power",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd, f, func(ctx context.Context, a *app) error {
				power, err := a.med.GetPower(ctx)
				if err != nil {
					return err
				}
				a.out.linef("Power: %d", power)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newPowerSetCmd() *cobra.Command {
	f := &readerFlags{}
	cmd := &cobra.Command{
		Use:   "set <level>",
		Short: "Set the transmit power",
		Long: `Set the transmit power. Only the configured power levels are accepted
(1 and 30 by default); other values are rejected before the reader is contacted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid power level %q: must be a number", args[0])
			}
			return withReader(cmd, f, func(ctx context.Context, a *app) error {
				ok, err := a.med.SetPower(ctx, level)
				if err != nil {
					return err
				}
				if !ok {
					a.out.warning("Reader refused power level %d", level)
					return nil
				}
				a.out.success("Power set to %d", level)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newBatteryCmd() *cobra.Command {
	f := &readerFlags{}
	cmd := &cobra.Command{
		Use:   "battery",
		Short: "Show the reader's battery level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd, f, func(ctx context.Context, a *app) error {
				level, err := a.med.GetBatteryLevel(ctx)
				if err != nil {
					return err
				}
				a.out.linef("Battery: %d%%", level)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}
