package server

// Method names accepted on the method channel.
const (
	MethodGetAvailableDevices      = "getAvailableDevices"
	MethodStartScan                = "startScan"
	MethodStopScan                 = "stopScan"
	MethodConnect                  = "connect"
	MethodDisconnect               = "disconnect"
	MethodGetPower                 = "getPower"
	MethodSetPower                 = "setPower"
	MethodGetAllowedPowerLevels    = "getAllowedPowerLevels"
	MethodGetBatteryLevel          = "getBatteryLevel"
	MethodStartTagInventory        = "startTagInventory"
	MethodStopTagInventory         = "stopTagInventory"
	MethodClearAllTags             = "clearAllTags"
	MethodClearTag                 = "clearTag"
	MethodCheckConnectivity        = "checkConnectivity"
	MethodStopCheckingConnectivity = "stopCheckingConnectivity"
	MethodGetPeripherals           = "getPeripherals"
	MethodGetTags                  = "getTags"
	MethodGetState                 = "getState"
	MethodGetBluetoothState        = "getBluetoothState"
)

// Stream names carried by event messages.
const (
	StreamDevices      = "devices"
	StreamTags         = "tags"
	StreamConnectivity = "connectivity"
)

// Message types.
const (
	TypeResult = "result"
	TypeEvent  = "event"
)

// Error codes that do not come from a session error kind.
const (
	CodeNotImplemented = "NOT_IMPLEMENTED"
	CodeParseError     = "PARSE_ERROR"
	CodeInternal       = "INTERNAL"
)

// mDNS advertisement.
const (
	MDNSServiceType = "_uhf-session._tcp"
	MDNSDomain      = "local."
)

const (
	wsPath     = "/ws"
	healthPath = "/api/v1/health"
)
