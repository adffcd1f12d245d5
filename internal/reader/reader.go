package reader

import (
	"context"
	"fmt"
	"strconv"
)

// CommandKind identifies the hardware function a Command asks the driver to perform.
type CommandKind int

const (
	CmdConnect CommandKind = iota
	CmdDisconnect
	CmdReset
	CmdStartScan
	CmdStopScan
	CmdStartInventory
	CmdStopInventory
	CmdGetPower
	CmdSetPower
	CmdGetBattery
)

var commandNames = map[CommandKind]string{
	CmdConnect:        "connect",
	CmdDisconnect:     "disconnect",
	CmdReset:          "reset",
	CmdStartScan:      "start_scan",
	CmdStopScan:       "stop_scan",
	CmdStartInventory: "start_inventory",
	CmdStopInventory:  "stop_inventory",
	CmdGetPower:       "get_power",
	CmdSetPower:       "set_power",
	CmdGetBattery:     "get_battery",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "command(" + strconv.Itoa(int(k)) + ")"
}

// Opcode returns the response opcode the reader answers this command with,
// or OpNone when the answer arrives through a lifecycle callback (or not at all).
func (k CommandKind) Opcode() Opcode {
	switch k {
	case CmdGetPower:
		return OpGetPower
	case CmdSetPower:
		return OpSetPower
	case CmdGetBattery:
		return OpBattery
	default:
		return OpNone
	}
}

// Command is a single outbound request to the reader.
type Command struct {
	Kind CommandKind
	// Address and Name identify the peripheral for CmdConnect.
	Address string
	Name    string
	Args    []string
}

func (c Command) String() string {
	if c.Address != "" {
		return fmt.Sprintf("%s(%s)", c.Kind, c.Address)
	}
	if len(c.Args) > 0 {
		return fmt.Sprintf("%s%v", c.Kind, c.Args)
	}
	return c.Kind.String()
}

// SetPowerCommand builds the set-power command. The reader expects the
// save flag, the antenna and the read/write power pair.
func SetPowerCommand(level int) Command {
	lvl := strconv.Itoa(level)
	return Command{Kind: CmdSetPower, Args: []string{"1", "1", lvl, lvl}}
}

// Peripheral is a reader discovered over Bluetooth.
type Peripheral struct {
	Address string `json:"address"`
	Name    string `json:"displayName"`
	RSSI    int    `json:"-"`
}

// TagObservation is a single tag read reported by the reader.
type TagObservation struct {
	EPC        string
	TID        string
	RSSI       float64
	UserMemory string
}

// Handler receives every callback a Driver produces. Implementations must
// not assume which goroutine calls them.
type Handler interface {
	OnResponse(op Opcode, payload string)
	OnPeripheralDiscovered(p Peripheral)
	OnTagObserved(t TagObservation)
	OnConnected()
	OnConnectFailed(message string)
	OnDisconnected()
}

// Driver is the vendor reader driver as seen by the session layer.
type Driver interface {
	// SetHandler installs the single callback sink. It must be called
	// before any command is sent.
	SetHandler(h Handler)
	SendCommand(ctx context.Context, cmd Command) error
	// Connected reports the driver's current connection flag.
	Connected() bool
	Close() error
}

// AdapterChecker is implemented by drivers that can tell whether the radio
// is usable without scanning. A BluetoothOff ConnectionError means it is
// switched off.
type AdapterChecker interface {
	CheckAdapter() error
}

// NopHandler drops every callback.
type NopHandler struct{}

func (NopHandler) OnResponse(Opcode, string)         {}
func (NopHandler) OnPeripheralDiscovered(Peripheral) {}
func (NopHandler) OnTagObserved(TagObservation)      {}
func (NopHandler) OnConnected()                      {}
func (NopHandler) OnConnectFailed(string)            {}
func (NopHandler) OnDisconnected()                   {}
