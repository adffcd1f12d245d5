package testutils

import (
	"sync"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockBLEClient is a testify mock of the GATT client calls a reader driver
// makes. It keeps the notification handler the driver subscribes with, so a
// test can play notifications, and owns a Disconnected channel for link loss.
//
//	client := testutils.NewMockBLEClient().
//	    FailWrites(errors.New("device not connected")).
//	    ReaderProfile(service, write, notify)
type MockBLEClient struct {
	mock.Mock

	mu           sync.Mutex
	notify       ble.NotificationHandler
	writes       [][]byte
	onWrite      func(value []byte)
	disconnected chan struct{}
	dropOnce     sync.Once
}

func NewMockBLEClient() *MockBLEClient {
	return &MockBLEClient{disconnected: make(chan struct{})}
}

// ReaderProfile exposes one service with a write and a notify
// characteristic and accepts subscriptions, writes and cancellation.
// Register failing expectations before calling it.
func (c *MockBLEClient) ReaderProfile(service, write, notify string) *MockBLEClient {
	svc := &ble.Service{UUID: ble.MustParse(service)}
	svc.Characteristics = []*ble.Characteristic{
		{UUID: ble.MustParse(write), Property: ble.CharWrite | ble.CharWriteNR},
		{UUID: ble.MustParse(notify), Property: ble.CharNotify},
	}

	c.On("DiscoverProfile", true).Return(&ble.Profile{Services: []*ble.Service{svc}}, nil)
	c.On("Subscribe", mock.Anything, false, mock.Anything).Return(nil)
	c.On("WriteCharacteristic", mock.Anything, mock.Anything, false).Return(nil)
	c.On("CancelConnection").Return(nil)
	return c
}

// FailWrites makes every characteristic write return err.
func (c *MockBLEClient) FailWrites(err error) *MockBLEClient {
	c.On("WriteCharacteristic", mock.Anything, mock.Anything, false).Return(err)
	return c
}

// OnWrite runs fn inside every accepted write, after it is recorded.
func (c *MockBLEClient) OnWrite(fn func(value []byte)) *MockBLEClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWrite = fn
	return c
}

func (c *MockBLEClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := c.Called(force)
	profile, _ := args.Get(0).(*ble.Profile)
	return profile, args.Error(1)
}

func (c *MockBLEClient) Subscribe(char *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := c.Called(char, ind, h)
	if err := args.Error(0); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = h
	return nil
}

func (c *MockBLEClient) WriteCharacteristic(char *ble.Characteristic, value []byte, noRsp bool) error {
	args := c.Called(char, value, noRsp)
	if err := args.Error(0); err != nil {
		return err
	}

	c.mu.Lock()
	c.writes = append(c.writes, append([]byte(nil), value...))
	hook := c.onWrite
	c.mu.Unlock()

	if hook != nil {
		hook(value)
	}
	return nil
}

func (c *MockBLEClient) CancelConnection() error {
	return c.Called().Error(0)
}

// Disconnected is closed by DropLink.
func (c *MockBLEClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

// DropLink reports a link loss the way the stack does.
func (c *MockBLEClient) DropLink() {
	c.dropOnce.Do(func() { close(c.disconnected) })
}

// Notify plays a notification through the subscribed handler.
func (c *MockBLEClient) Notify(data []byte) {
	c.mu.Lock()
	h := c.notify
	c.mu.Unlock()
	if h != nil {
		h(data)
	}
}

// Writes returns a copy of every accepted write.
func (c *MockBLEClient) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// Subscribed reports whether the driver subscribed to notifications.
func (c *MockBLEClient) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notify != nil
}
