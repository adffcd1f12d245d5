package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/srg/uhfsession/internal/reader"
)

// Responder answers a command on behalf of the reader. It runs inside
// SendCommand, after the mock expectation has been recorded.
type Responder func(h reader.Handler, cmd reader.Command)

// MockDriver is a testify mock of reader.Driver that also records every
// command and can play the reader side of the callback stream.
//
//	drv := testutils.NewMockDriver()
//	drv.AcceptAll()
//	drv.RespondWith(reader.CmdGetPower, func(h reader.Handler, _ reader.Command) {
//	    h.OnResponse(reader.OpGetPower, "30")
//	})
type MockDriver struct {
	mock.Mock

	mu         sync.Mutex
	handler    reader.Handler
	sent       []reader.Command
	responders map[reader.CommandKind]Responder
	connected  atomic.Bool
}

func NewMockDriver() *MockDriver {
	return &MockDriver{responders: make(map[reader.CommandKind]Responder)}
}

// AcceptAll makes every SendCommand succeed. Register more specific
// expectations before calling it.
func (d *MockDriver) AcceptAll() *MockDriver {
	d.On("SendCommand", mock.Anything, mock.Anything).Return(nil)
	return d
}

// FailKind makes SendCommand return err for commands of kind.
func (d *MockDriver) FailKind(kind reader.CommandKind, err error) *MockDriver {
	d.On("SendCommand", mock.Anything, mock.MatchedBy(func(cmd reader.Command) bool {
		return cmd.Kind == kind
	})).Return(err)
	return d
}

// RespondWith installs an automatic answer for commands of kind.
func (d *MockDriver) RespondWith(kind reader.CommandKind, fn Responder) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responders[kind] = fn
	return d
}

func (d *MockDriver) SetHandler(h reader.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *MockDriver) SendCommand(ctx context.Context, cmd reader.Command) error {
	args := d.Called(ctx, cmd)
	if err := args.Error(0); err != nil {
		return err
	}

	d.mu.Lock()
	d.sent = append(d.sent, cmd)
	respond := d.responders[cmd.Kind]
	h := d.handler
	d.mu.Unlock()

	if respond != nil {
		respond(h, cmd)
	}
	return nil
}

func (d *MockDriver) Connected() bool {
	return d.connected.Load()
}

func (d *MockDriver) SetConnected(v bool) {
	d.connected.Store(v)
}

func (d *MockDriver) Close() error {
	return nil
}

// Sent returns a copy of the commands accepted so far.
func (d *MockDriver) Sent() []reader.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]reader.Command(nil), d.sent...)
}

// SentKinds returns the kinds of the commands accepted so far.
func (d *MockDriver) SentKinds() []reader.CommandKind {
	cmds := d.Sent()
	kinds := make([]reader.CommandKind, len(cmds))
	for i, c := range cmds {
		kinds[i] = c.Kind
	}
	return kinds
}

// CountSent returns how many accepted commands had kind.
func (d *MockDriver) CountSent(kind reader.CommandKind) int {
	n := 0
	for _, c := range d.Sent() {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func (d *MockDriver) currentHandler() reader.Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handler == nil {
		return reader.NopHandler{}
	}
	return d.handler
}

// Respond plays a response callback.
func (d *MockDriver) Respond(op reader.Opcode, payload string) {
	d.currentHandler().OnResponse(op, payload)
}

// Discover plays a discovery callback.
func (d *MockDriver) Discover(address, name string) {
	d.currentHandler().OnPeripheralDiscovered(reader.Peripheral{Address: address, Name: name, RSSI: -60})
}

// ObserveTag plays a tag observation callback.
func (d *MockDriver) ObserveTag(epc, tid string, rssi float64) {
	d.currentHandler().OnTagObserved(reader.TagObservation{EPC: epc, TID: tid, RSSI: rssi})
}

// ConnectSucceeded marks the driver connected and reports it.
func (d *MockDriver) ConnectSucceeded() {
	d.connected.Store(true)
	d.currentHandler().OnConnected()
}

// ConnectFailed reports a failed connection attempt.
func (d *MockDriver) ConnectFailed(message string) {
	d.currentHandler().OnConnectFailed(message)
}

// Disconnected marks the driver disconnected and reports it.
func (d *MockDriver) Disconnected() {
	d.connected.Store(false)
	d.currentHandler().OnDisconnected()
}
