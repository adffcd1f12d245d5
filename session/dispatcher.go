package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/reader"
)

// Connect connects to a reader found by the current scan session.
func (m *Mediator) Connect(ctx context.Context, address string) (bool, error) {
	if address == "" {
		return false, newError(KindInvalidArgument, "empty address", nil)
	}

	out, err := m.request(ctx, ClassConnect, func() ([]reader.Command, error) {
		p, ok := m.peripherals.lookup(address)
		if !ok {
			return nil, newError(KindAddressNotFound, address, nil)
		}
		m.logger.WithFields(logrus.Fields{
			"device":  p.Name,
			"address": p.Address,
		}).Info("Connecting to reader")
		return []reader.Command{{Kind: reader.CmdConnect, Address: p.Address, Name: p.Name}}, nil
	})
	if err != nil {
		return false, err
	}
	return out.flag, nil
}

// Disconnect resets the reader and drops the link. Tracked peripherals are
// forgotten so the next connect needs a fresh scan.
func (m *Mediator) Disconnect(ctx context.Context) (bool, error) {
	out, err := m.request(ctx, ClassDisconnect, func() ([]reader.Command, error) {
		m.peripherals.clear()
		return []reader.Command{{Kind: reader.CmdReset}, {Kind: reader.CmdDisconnect}}, nil
	})
	if err != nil {
		return false, err
	}
	return out.flag, nil
}

// SetPower sets the transmit power. Levels outside the allowed set are
// rejected without touching the driver. A false result means the reader
// refused the level.
func (m *Mediator) SetPower(ctx context.Context, level int) (bool, error) {
	if _, ok := m.allowedPower[level]; !ok {
		return false, newError(KindInvalidArgument,
			fmt.Sprintf("power level %d, allowed %v", level, m.AllowedPowerLevels()), nil)
	}

	out, err := m.request(ctx, ClassSetPower, func() ([]reader.Command, error) {
		return []reader.Command{reader.SetPowerCommand(level)}, nil
	})
	if err != nil {
		return false, err
	}
	return out.flag, nil
}

// GetPower queries the current transmit power.
func (m *Mediator) GetPower(ctx context.Context) (int, error) {
	out, err := m.request(ctx, ClassGetPower, func() ([]reader.Command, error) {
		return []reader.Command{{Kind: reader.CmdGetPower}}, nil
	})
	if err != nil {
		return 0, err
	}
	return out.value, nil
}

// GetBatteryLevel queries the battery charge in percent.
func (m *Mediator) GetBatteryLevel(ctx context.Context) (int, error) {
	out, err := m.request(ctx, ClassGetBattery, func() ([]reader.Command, error) {
		return []reader.Command{{Kind: reader.CmdGetBattery}}, nil
	})
	if err != nil {
		return 0, err
	}
	return out.value, nil
}

// BluetoothEnabled reports whether the driver's radio is usable. Drivers
// that cannot tell are assumed to be on.
func (m *Mediator) BluetoothEnabled(ctx context.Context) (bool, error) {
	var err error
	if execErr := m.exec(ctx, func() {
		if checker, ok := m.driver.(reader.AdapterChecker); ok {
			err = checker.CheckAdapter()
		}
	}); execErr != nil {
		return false, execErr
	}

	switch {
	case err == nil:
		return true, nil
	case reader.IsConnectionState(err, reader.BluetoothOff):
		m.logger.WithError(err).Debug("Bluetooth adapter is off")
		return false, nil
	default:
		return false, newError(KindHardwareFailure, "check adapter", err)
	}
}

// AllowedPowerLevels returns the accepted SetPower levels in ascending order.
func (m *Mediator) AllowedPowerLevels() []int {
	levels := make([]int, 0, len(m.allowedPower))
	for lvl := range m.allowedPower {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)
	return levels
}

// StartScan starts a fresh discovery session. Previously tracked
// peripherals are forgotten and sink receives each new one.
func (m *Mediator) StartScan(ctx context.Context, sink PeripheralSink) error {
	var err error
	if execErr := m.exec(ctx, func() {
		m.peripherals.clear()
		if err = m.send(ctx, reader.Command{Kind: reader.CmdStartScan}); err != nil {
			return
		}
		m.peripheralSink = sink
		m.scanning = true
		m.logger.Info("Scan started")
	}); execErr != nil {
		return execErr
	}
	return err
}

// StopScan stops discovery. Late discovery callbacks are dropped.
func (m *Mediator) StopScan(ctx context.Context) (bool, error) {
	var err error
	if execErr := m.exec(ctx, func() {
		m.scanning = false
		m.peripheralSink = nil
		err = m.send(ctx, reader.Command{Kind: reader.CmdStopScan})
		m.logger.WithField("device_count", m.peripherals.len()).Info("Scan stopped")
	}); execErr != nil {
		return false, execErr
	}
	return err == nil, err
}

// StartTagInventory starts tag streaming. Each distinct EPC is delivered to
// sink once until it is cleared.
func (m *Mediator) StartTagInventory(ctx context.Context, sink TagSink) error {
	var err error
	if execErr := m.exec(ctx, func() {
		if err = m.send(ctx, reader.Command{Kind: reader.CmdStartInventory}); err != nil {
			return
		}
		m.tagSink = sink
		m.inventory = true
		m.logger.Info("Tag inventory started")
	}); execErr != nil {
		return execErr
	}
	return err
}

// StopTagInventory stops tag streaming. Late observations are dropped.
func (m *Mediator) StopTagInventory(ctx context.Context) (bool, error) {
	var err error
	if execErr := m.exec(ctx, func() {
		m.inventory = false
		m.tagSink = nil
		err = m.send(ctx, reader.Command{Kind: reader.CmdStopInventory})
		m.logger.WithField("tag_count", m.tags.len()).Info("Tag inventory stopped")
	}); execErr != nil {
		return false, execErr
	}
	return err == nil, err
}

// ClearAllTags forgets every tag and re-arms delivery for all of them.
func (m *Mediator) ClearAllTags(ctx context.Context) (bool, error) {
	if err := m.exec(ctx, func() { m.tags.clearAll() }); err != nil {
		return false, err
	}
	return true, nil
}

// ClearTag forgets the tag with epc and re-arms its delivery.
func (m *Mediator) ClearTag(ctx context.Context, epc string) (bool, error) {
	var found bool
	if err := m.exec(ctx, func() {
		found = m.tags.clear(epc)
	}); err != nil {
		return false, err
	}
	if !found {
		return false, newError(KindTagNotFound, epc, nil)
	}
	return true, nil
}

// StartConnectivityPoll emits the driver's connection flag to sink every
// poll interval. Calling it while polling only replaces the sink.
func (m *Mediator) StartConnectivityPoll(ctx context.Context, sink ConnectivitySink) error {
	return m.exec(ctx, func() {
		m.poller.start(sink)
	})
}

// StopConnectivityPoll stops the poll. Ticks already in flight are discarded.
func (m *Mediator) StopConnectivityPoll(ctx context.Context) error {
	return m.exec(ctx, func() {
		m.poller.stop()
		m.poller.sink = nil
	})
}

// Peripherals returns the readers found by the current scan session in
// discovery order.
func (m *Mediator) Peripherals(ctx context.Context) ([]reader.Peripheral, error) {
	var devs []reader.Peripheral
	err := m.exec(ctx, func() {
		devs = m.peripherals.snapshot()
	})
	return devs, err
}

// Tags returns the merged tag records in first-seen order.
func (m *Mediator) Tags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	err := m.exec(ctx, func() {
		tags = m.tags.snapshot()
	})
	return tags, err
}

// State is a point-in-time view of the session flags.
type State struct {
	Scanning    bool     `json:"scanning"`
	Inventory   bool     `json:"inventory"`
	Polling     bool     `json:"polling"`
	Connected   bool     `json:"connected"`
	Pending     []string `json:"pending"`
	Peripherals int      `json:"peripherals"`
	Tags        int      `json:"tags"`
	SentTags    int      `json:"sentTags"`
}

// State reports the current session flags.
func (m *Mediator) State(ctx context.Context) (State, error) {
	var st State
	err := m.exec(ctx, func() {
		st = State{
			Scanning:    m.scanning,
			Inventory:   m.inventory,
			Polling:     m.poller.running,
			Connected:   m.driver.Connected(),
			Peripherals: m.peripherals.len(),
			Tags:        m.tags.len(),
			SentTags:    m.tags.sentLen(),
		}
		for _, class := range m.pending.pending() {
			st.Pending = append(st.Pending, class.String())
		}
	})
	return st, err
}
