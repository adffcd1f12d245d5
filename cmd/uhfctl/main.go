package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Every call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "uhfctl",
		Short: "UHF RFID reader session tool",
		Long: `Command-line front end for UR-series UHF RFID readers:

- Scan for readers over Bluetooth
- Connect, read battery level and transmit power, set power
- Stream a deduplicated tag inventory
- Watch reader connectivity
- Serve the reader session over a WebSocket method channel

Use --driver sim to run against the built-in simulated reader.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("driver", "", "Reader driver (sim, ble)")
	root.PersistentFlags().BoolP("verbose", "V", false, "Enable debug logging")

	root.AddCommand(
		newScanCmd(),
		newConnectCmd(),
		newPowerCmd(),
		newBatteryCmd(),
		newInventoryCmd(),
		newWatchCmd(),
		newServeCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
