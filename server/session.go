package server

import (
	"context"

	"github.com/srg/uhfsession/internal/reader"
	"github.com/srg/uhfsession/session"
)

// Session is the part of *session.Mediator the method channel exposes.
type Session interface {
	Connect(ctx context.Context, address string) (bool, error)
	Disconnect(ctx context.Context) (bool, error)
	SetPower(ctx context.Context, level int) (bool, error)
	GetPower(ctx context.Context) (int, error)
	GetBatteryLevel(ctx context.Context) (int, error)
	BluetoothEnabled(ctx context.Context) (bool, error)
	AllowedPowerLevels() []int
	StartScan(ctx context.Context, sink session.PeripheralSink) error
	StopScan(ctx context.Context) (bool, error)
	StartTagInventory(ctx context.Context, sink session.TagSink) error
	StopTagInventory(ctx context.Context) (bool, error)
	ClearAllTags(ctx context.Context) (bool, error)
	ClearTag(ctx context.Context, epc string) (bool, error)
	StartConnectivityPoll(ctx context.Context, sink session.ConnectivitySink) error
	StopConnectivityPoll(ctx context.Context) error
	Peripherals(ctx context.Context) ([]reader.Peripheral, error)
	Tags(ctx context.Context) ([]session.Tag, error)
	State(ctx context.Context) (session.State, error)
}

var _ Session = (*session.Mediator)(nil)
