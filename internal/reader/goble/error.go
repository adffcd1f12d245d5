package goble

import (
	"fmt"
	"strings"

	"github.com/srg/uhfsession/internal/reader"
)

// NormalizeError maps known go-ble error strings to reader.ConnectionError
// sentinels, wrapping the original error.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "is bluetooth turned on"),
		strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", reader.ErrBluetoothOff, err)
	case strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", reader.ErrNotConnected, err)
	case strings.Contains(msg, "already connected"):
		return fmt.Errorf("%w: %v", reader.ErrAlreadyConnected, err)
	default:
		return err
	}
}
