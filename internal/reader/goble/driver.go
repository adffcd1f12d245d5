// Package goble drives a UR reader over Bluetooth LE with go-ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/groutine"
	"github.com/srg/uhfsession/internal/reader"
)

const (
	// DefaultWriteChunkSize keeps every write inside the default ATT MTU.
	DefaultWriteChunkSize = 20
	DefaultWriteDelay     = 5 * time.Millisecond
	DefaultBufferSize     = 8192
	DefaultConnectTimeout = 15 * time.Second
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
var DeviceFactory = newDevice

// Client is the part of ble.Client the driver talks to.
type Client interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

// Radio scans for readers and dials them.
type Radio interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, addr ble.Addr) (Client, error)
}

// deviceRadio adapts a platform ble.Device to Radio.
type deviceRadio struct {
	dev ble.Device
}

func (r deviceRadio) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return r.dev.Scan(ctx, allowDup, h)
}

func (r deviceRadio) Dial(ctx context.Context, addr ble.Addr) (Client, error) {
	client, err := r.dev.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Options configures the BLE driver.
type Options struct {
	ServiceUUID    string
	WriteCharUUID  string
	NotifyCharUUID string
	ConnectTimeout time.Duration
	// BufferSize is the notification ring buffer capacity in bytes.
	BufferSize int
	Codec      Codec
	// Radio replaces the platform adapter, which is otherwise opened on
	// the first scan or connect.
	Radio  Radio
	Logger *logrus.Logger
}

// Driver implements reader.Driver on top of go-ble.
type Driver struct {
	opts   Options
	logger *logrus.Logger
	codec  Codec

	mu         sync.Mutex
	handler    reader.Handler
	radio      Radio
	scanCancel context.CancelFunc
	conn       *connection

	connected atomic.Bool
	asm       *assembler
	wake      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// connection is one live link to a reader.
type connection struct {
	client    Client
	writeChar *ble.Characteristic
	address   string
	lost      sync.Once
}

// New creates a driver and starts its notification decoder. The radio is
// opened lazily on the first scan or connect.
func New(opts *Options) (*Driver, error) {
	if opts == nil {
		return nil, errors.New("goble: options are required")
	}
	o := *opts
	for name, uuid := range map[string]string{
		"service":               o.ServiceUUID,
		"write characteristic":  o.WriteCharUUID,
		"notify characteristic": o.NotifyCharUUID,
	} {
		if _, err := ble.Parse(uuid); err != nil {
			return nil, fmt.Errorf("invalid %s UUID %q: %w", name, uuid, err)
		}
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Codec == nil {
		o.Codec = LineCodec{}
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		opts:    o,
		logger:  o.Logger,
		codec:   o.Codec,
		handler: reader.NopHandler{},
		radio:   o.Radio,
		asm:     newAssembler(o.BufferSize),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	d.wg.Add(1)
	groutine.Go(ctx, "goble-decoder", func(ctx context.Context) {
		defer d.wg.Done()
		d.decodeLoop(ctx)
	})

	return d, nil
}

func (d *Driver) SetHandler(h reader.Handler) {
	if h == nil {
		h = reader.NopHandler{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *Driver) currentHandler() reader.Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler
}

func (d *Driver) Connected() bool {
	return d.connected.Load()
}

func (d *Driver) SendCommand(ctx context.Context, cmd reader.Command) error {
	if d.ctx.Err() != nil {
		return reader.ErrDriverClosed
	}

	switch cmd.Kind {
	case reader.CmdStartScan:
		return d.startScan()
	case reader.CmdStopScan:
		d.stopScan()
		return nil
	case reader.CmdConnect:
		return d.connect(cmd.Address)
	case reader.CmdDisconnect:
		return d.disconnect()
	default:
		return d.write(ctx, cmd)
	}
}

// Close cancels scanning, drops the link and stops the decoder.
func (d *Driver) Close() error {
	d.stopScan()
	err := d.disconnect()
	if errors.Is(err, reader.ErrNotConnected) {
		err = nil
	}
	d.cancel()
	d.wg.Wait()
	return err
}

func (d *Driver) device() (Radio, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.radio != nil {
		return d.radio, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	d.radio = deviceRadio{dev: dev}
	return d.radio, nil
}

// CheckAdapter reports whether the Bluetooth adapter can be opened.
func (d *Driver) CheckAdapter() error {
	_, err := d.device()
	return err
}

func (d *Driver) startScan() error {
	dev, err := d.device()
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.scanCancel != nil {
		d.mu.Unlock()
		return nil
	}
	scanCtx, cancel := context.WithCancel(d.ctx)
	d.scanCancel = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	groutine.Go(scanCtx, "goble-scan", func(ctx context.Context) {
		defer d.wg.Done()
		d.logger.Info("BLE scan started")
		err := dev.Scan(ctx, true, func(adv ble.Advertisement) {
			d.currentHandler().OnPeripheralDiscovered(reader.Peripheral{
				Address: adv.Addr().String(),
				Name:    adv.LocalName(),
				RSSI:    adv.RSSI(),
			})
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			d.logger.WithError(NormalizeError(err)).Warn("BLE scan failed")
		}
		d.logger.Debug("BLE scan finished")
	})
	return nil
}

func (d *Driver) stopScan() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scanCancel != nil {
		d.scanCancel()
		d.scanCancel = nil
	}
}

// connect dials in the background; the outcome arrives as OnConnected or
// OnConnectFailed.
func (d *Driver) connect(address string) error {
	if d.connected.Load() {
		return reader.ErrAlreadyConnected
	}
	dev, err := d.device()
	if err != nil {
		return err
	}

	d.wg.Add(1)
	groutine.Go(d.ctx, "goble-connect", func(ctx context.Context) {
		defer d.wg.Done()
		conn, err := d.dial(ctx, dev, address)
		if err != nil {
			d.logger.WithError(err).WithField("address", address).Warn("Failed to connect to reader")
			d.currentHandler().OnConnectFailed(err.Error())
			return
		}

		d.mu.Lock()
		d.conn = conn
		d.mu.Unlock()
		d.connected.Store(true)
		d.watch(conn)

		d.logger.WithField("address", address).Info("Reader connected")
		d.currentHandler().OnConnected()
	})
	return nil
}

func (d *Driver) dial(ctx context.Context, dev Radio, address string) (*connection, error) {
	connCtx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancel()

	client, err := dev.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		d.cancelConnection(client)
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	writeChar := profile.FindCharacteristic(ble.NewCharacteristic(ble.MustParse(d.opts.WriteCharUUID)))
	notifyChar := profile.FindCharacteristic(ble.NewCharacteristic(ble.MustParse(d.opts.NotifyCharUUID)))
	if writeChar == nil || notifyChar == nil {
		d.cancelConnection(client)
		return nil, fmt.Errorf("reader service %s does not expose the expected characteristics", d.opts.ServiceUUID)
	}

	if err := client.Subscribe(notifyChar, false, d.onNotification); err != nil {
		d.cancelConnection(client)
		return nil, fmt.Errorf("failed to subscribe to notifications: %w", NormalizeError(err))
	}

	return &connection{client: client, writeChar: writeChar, address: address}, nil
}

func (d *Driver) cancelConnection(client Client) {
	if err := client.CancelConnection(); err != nil {
		d.logger.WithError(err).Warn("Failed to cancel connection")
	}
}

// watch reports a link loss the stack detects on its own.
func (d *Driver) watch(conn *connection) {
	monitor, ok := conn.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		d.logger.Debug("Client does not report disconnections")
		return
	}

	d.wg.Add(1)
	groutine.Go(d.ctx, "goble-link-monitor", func(ctx context.Context) {
		defer d.wg.Done()
		select {
		case <-monitor.Disconnected():
			d.logger.WithField("address", conn.address).Warn("Reader link lost")
			d.lose(conn)
		case <-ctx.Done():
		}
	})
}

// lose clears conn and reports the disconnect at most once. The callback is
// delivered from its own goroutine: lose also runs inside SendCommand, where
// the caller may be the handler's own event loop.
func (d *Driver) lose(conn *connection) {
	conn.lost.Do(func() {
		d.mu.Lock()
		if d.conn == conn {
			d.conn = nil
		}
		d.mu.Unlock()
		d.connected.Store(false)

		h := d.currentHandler()
		d.wg.Add(1)
		groutine.Go(context.Background(), "goble-link-lost", func(context.Context) {
			defer d.wg.Done()
			h.OnDisconnected()
		})
	})
}

func (d *Driver) disconnect() error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return reader.ErrNotConnected
	}

	err := NormalizeError(conn.client.CancelConnection())
	d.lose(conn)
	return err
}

func (d *Driver) write(ctx context.Context, cmd reader.Command) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return &reader.ConnectionError{State: reader.NotConnected, Msg: cmd.Kind.String()}
	}

	data, err := d.codec.Encode(cmd)
	if err != nil {
		return err
	}

	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(data), DefaultWriteChunkSize)
		if err := conn.client.WriteCharacteristic(conn.writeChar, data[:n], false); err != nil {
			return fmt.Errorf("failed to write %s: %w", cmd.Kind, NormalizeError(err))
		}
		data = data[n:]
		if len(data) > 0 {
			time.Sleep(DefaultWriteDelay)
		}
	}
	return nil
}

// onNotification runs on the BLE stack's goroutine and must not block.
func (d *Driver) onNotification(data []byte) {
	dropped, err := d.asm.write(data)
	if err != nil {
		d.logger.WithError(err).Warn("Notification buffer write failed")
	}
	if dropped > 0 {
		d.logger.WithField("bytes", dropped).Warn("Notification buffer full, dropping data")
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Driver) decodeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}

		err := d.asm.lines(d.dispatch, func(n int) {
			d.logger.WithField("bytes", n).Warn("Discarding oversized notification line")
		})
		if err != nil {
			d.logger.WithError(err).Warn("Notification buffer read failed")
		}
	}
}

func (d *Driver) dispatch(line []byte) {
	frame, err := d.codec.Decode(line)
	if err != nil {
		d.logger.WithError(err).Debug("Dropping undecodable notification")
		return
	}

	h := d.currentHandler()
	if frame.Tag != nil {
		h.OnTagObserved(*frame.Tag)
		return
	}
	h.OnResponse(frame.Op, frame.Payload)
}
