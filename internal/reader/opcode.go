package reader

import (
	"fmt"
	"strconv"
	"strings"
)

// Opcode identifies the reader function a response callback belongs to.
type Opcode uint16

const OpNone Opcode = 0

// Reader function codes as reported through the shared response callback.
const (
	OpHardwareVersion  Opcode = 0x01
	OpFirmwareVersion  Opcode = 0x03
	OpSetPower         Opcode = 0x11
	OpGetPower         Opcode = 0x13
	OpSetRegion        Opcode = 0x15
	OpSetFilter        Opcode = 0x2D
	OpGetFilter        Opcode = 0x2F
	OpTemperature      Opcode = 0x35
	OpSetUserArea      Opcode = 0x71
	OpGetUserArea      Opcode = 0x73
	OpEnterUpgrade     Opcode = 0xC1
	OpStartUpgrade     Opcode = 0xC3
	OpUpgradePacket    Opcode = 0xC5
	OpFinishUpgrade    Opcode = 0xC7
	OpMainboardVersion Opcode = 0xC9
	OpBattery          Opcode = 0xE5
	OpKeyPress         Opcode = 0xE6
	OpGetSerial        Opcode = 0xE31
	OpGetKey           Opcode = 0xE32
	OpEncrypt          Opcode = 0xE33
	OpDecrypt          Opcode = 0xE34
	OpGetRandom        Opcode = 0xE35
	OpReadSecure       Opcode = 0xE36
	OpBeepOff          Opcode = 0xE500
	OpBeepOn           Opcode = 0xE501
)

var opcodeNames = map[Opcode]string{
	OpHardwareVersion:  "hardware_version",
	OpFirmwareVersion:  "firmware_version",
	OpSetPower:         "set_power",
	OpGetPower:         "get_power",
	OpSetRegion:        "set_region",
	OpSetFilter:        "set_filter",
	OpGetFilter:        "get_filter",
	OpTemperature:      "temperature",
	OpSetUserArea:      "set_user_area",
	OpGetUserArea:      "get_user_area",
	OpEnterUpgrade:     "enter_upgrade",
	OpStartUpgrade:     "start_upgrade",
	OpUpgradePacket:    "upgrade_packet",
	OpFinishUpgrade:    "finish_upgrade",
	OpMainboardVersion: "mainboard_version",
	OpBattery:          "battery",
	OpKeyPress:         "key_press",
	OpGetSerial:        "get_serial",
	OpGetKey:           "get_key",
	OpEncrypt:          "encrypt",
	OpDecrypt:          "decrypt",
	OpGetRandom:        "get_random",
	OpReadSecure:       "read_secure",
	OpBeepOff:          "beep_off",
	OpBeepOn:           "beep_on",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%X", uint16(op))
}

// Response is the decoded form of a (opcode, payload) callback. The set of
// implementations is closed; callers switch on the concrete type.
type Response interface {
	Opcode() Opcode
	response()
}

// PowerSet answers OpSetPower.
type PowerSet struct{ OK bool }

// PowerLevel answers OpGetPower. Err is set when the payload is not a number.
type PowerLevel struct {
	Value int
	Err   error
}

// BatteryLevel answers OpBattery. Err is set when the payload is not a number.
type BatteryLevel struct {
	Value int
	Err   error
}

// Ack is a bare success/failure code for commands the session never issues.
type Ack struct {
	Op Opcode
	OK bool
}

// Info carries free-form text such as version strings.
type Info struct {
	Op    Opcode
	Label string
	Text  string
}

// Temperature reports the module temperature; OK is false when the reader answered -1.
type Temperature struct {
	Celsius string
	OK      bool
}

// UserMemoryInfo answers OpGetUserArea.
type UserMemoryInfo struct {
	Type, Ptr, Len string
	OK             bool
}

// Upgrade reports a firmware upgrade stage.
type Upgrade struct {
	Stage Opcode
	OK    bool
}

// KeyPress reports a trigger key code.
type KeyPress struct {
	Code int
	OK   bool
}

// Unknown is any opcode missing from the table.
type Unknown struct {
	Op      Opcode
	Payload string
}

func (PowerSet) Opcode() Opcode       { return OpSetPower }
func (PowerLevel) Opcode() Opcode     { return OpGetPower }
func (BatteryLevel) Opcode() Opcode   { return OpBattery }
func (r Ack) Opcode() Opcode          { return r.Op }
func (r Info) Opcode() Opcode         { return r.Op }
func (Temperature) Opcode() Opcode    { return OpTemperature }
func (UserMemoryInfo) Opcode() Opcode { return OpGetUserArea }
func (r Upgrade) Opcode() Opcode      { return r.Stage }
func (KeyPress) Opcode() Opcode       { return OpKeyPress }
func (r Unknown) Opcode() Opcode      { return r.Op }

func (PowerSet) response()       {}
func (PowerLevel) response()     {}
func (BatteryLevel) response()   {}
func (Ack) response()            {}
func (Info) response()           {}
func (Temperature) response()    {}
func (UserMemoryInfo) response() {}
func (Upgrade) response()        {}
func (KeyPress) response()       {}
func (Unknown) response()        {}

// PayloadError reports a payload that does not match its opcode's format.
type PayloadError struct {
	Op      Opcode
	Payload string
	Want    string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: payload %q is not %s", e.Op, e.Payload, e.Want)
}

// Decode maps a raw callback onto its response variant.
func Decode(op Opcode, payload string) Response {
	ok := payload == "1"

	switch op {
	case OpSetPower:
		return PowerSet{OK: ok}
	case OpGetPower:
		v, err := decodeInt(op, payload)
		return PowerLevel{Value: v, Err: err}
	case OpBattery:
		v, err := decodeInt(op, payload)
		return BatteryLevel{Value: v, Err: err}
	case OpHardwareVersion:
		return Info{Op: op, Label: "Hardware version", Text: payload}
	case OpFirmwareVersion:
		return Info{Op: op, Label: "RFID firmware version", Text: payload}
	case OpMainboardVersion:
		return Info{Op: op, Label: "Mainboard version", Text: payload}
	case OpGetSerial, OpGetRandom:
		return Info{Op: op, Label: op.String(), Text: payload}
	case OpGetKey, OpEncrypt, OpDecrypt, OpReadSecure, OpGetFilter:
		return Info{Op: op, Label: op.String(), Text: payload}
	case OpSetFilter, OpSetRegion, OpSetUserArea, OpBeepOff, OpBeepOn:
		return Ack{Op: op, OK: ok}
	case OpTemperature:
		return Temperature{Celsius: payload, OK: payload != "-1"}
	case OpGetUserArea:
		fields := strings.Fields(payload)
		if len(fields) < 3 {
			return UserMemoryInfo{}
		}
		return UserMemoryInfo{Type: fields[0], Ptr: fields[1], Len: fields[2], OK: true}
	case OpEnterUpgrade, OpStartUpgrade, OpUpgradePacket, OpFinishUpgrade:
		return Upgrade{Stage: op, OK: ok}
	case OpKeyPress:
		code, err := strconv.Atoi(strings.TrimSpace(payload))
		return KeyPress{Code: code, OK: err == nil}
	default:
		return Unknown{Op: op, Payload: payload}
	}
}

func decodeInt(op Opcode, payload string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, &PayloadError{Op: op, Payload: payload, Want: "a number"}
	}
	return v, nil
}
