package main

import (
	"errors"
	"fmt"

	"github.com/srg/uhfsession/internal/reader"
	"github.com/srg/uhfsession/session"
)

// Command-level errors
var (
	// ErrNoReader indicates the scan window closed without the requested reader showing up.
	ErrNoReader = errors.New("no reader found")

	// ErrConnectionRefused indicates the reader answered the connect request negatively.
	ErrConnectionRefused = errors.New("reader refused the connection")
)

// FormatUserError turns err into a one-line message for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNoReader):
		return fmt.Sprintf("%v. Is the reader switched on and in range?", err)
	case reader.IsConnectionState(err, reader.BluetoothOff):
		return "Bluetooth is turned off. Enable it and try again."
	case reader.IsConnectionState(err, reader.NotConnected):
		return "The reader is not connected."
	}

	switch session.KindOf(err) {
	case session.KindInvalidArgument:
		return fmt.Sprintf("Invalid argument: %v", err)
	case session.KindAddressNotFound:
		return fmt.Sprintf("%v. Run 'uhfctl scan' to list readers in range.", err)
	case session.KindUnavailable:
		return fmt.Sprintf("The reader sent an unreadable answer: %v", err)
	case session.KindHardwareFailure:
		return fmt.Sprintf("Reader error: %v", err)
	case session.KindTimeout:
		return "The reader did not answer in time."
	case session.KindBusy:
		return "Another request of the same kind is still in progress."
	case session.KindClosed:
		return "The session was closed."
	}

	return err.Error()
}
