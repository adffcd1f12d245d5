package session

import (
	"strings"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/reader"
)

// peripheralTracker deduplicates discovered readers by address and keeps
// them in arrival order.
type peripheralTracker struct {
	devices *hashmap.Map[string, reader.Peripheral]
	order   []string
	prefix  string
	logger  *logrus.Logger
}

func newPeripheralTracker(prefix string, logger *logrus.Logger) *peripheralTracker {
	return &peripheralTracker{
		devices: hashmap.New[string, reader.Peripheral](),
		prefix:  prefix,
		logger:  logger,
	}
}

// observe records p and reports whether it is new to the current session.
func (t *peripheralTracker) observe(p reader.Peripheral) bool {
	if t.prefix != "" && !strings.HasPrefix(p.Name, t.prefix) {
		return false
	}

	if _, existing := t.devices.Get(p.Address); existing {
		return false
	}
	if !t.devices.Insert(p.Address, p) {
		return false
	}
	t.order = append(t.order, p.Address)

	t.logger.WithFields(logrus.Fields{
		"device":  p.Name,
		"address": p.Address,
		"rssi":    p.RSSI,
	}).Info("Discovered new reader")

	return true
}

func (t *peripheralTracker) lookup(address string) (reader.Peripheral, bool) {
	return t.devices.Get(address)
}

func (t *peripheralTracker) len() int {
	return t.devices.Len()
}

// snapshot returns the tracked peripherals in arrival order.
func (t *peripheralTracker) snapshot() []reader.Peripheral {
	devs := make([]reader.Peripheral, 0, len(t.order))
	for _, addr := range t.order {
		if p, ok := t.devices.Get(addr); ok {
			devs = append(devs, p)
		}
	}
	return devs
}

func (t *peripheralTracker) clear() {
	t.devices = hashmap.New[string, reader.Peripheral]()
	t.order = nil
}
