// Package sim is an in-process UR reader. It answers commands the way the
// hardware does, asynchronously through the handler, and is used by the
// CLI's sim driver and by tests that need a real callback stream.
package sim

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/groutine"
	"github.com/srg/uhfsession/internal/reader"
)

// Options configures the simulated reader.
type Options struct {
	// Peripherals are advertised in a loop while scanning.
	Peripherals []reader.Peripheral
	// Tags are reported in a loop while inventory runs.
	Tags []reader.TagObservation
	// Latency delays every answer.
	Latency     time.Duration
	TagInterval time.Duration
	// LinkLossAfter drops the link this long after every connect, the
	// way a reader carried out of range does. Zero keeps the link.
	LinkLossAfter time.Duration
	Power         int
	Battery     int
	Logger      *logrus.Logger
}

// DefaultOptions returns a reader population with two UR readers, one
// unrelated peripheral and three tags.
func DefaultOptions() *Options {
	return &Options{
		Peripherals: []reader.Peripheral{
			{Address: "C4:7F:51:00:10:01", Name: "UR-100 #1", RSSI: -48},
			{Address: "3A:11:9C:42:7E:05", Name: "JBL Flip 5", RSSI: -71},
			{Address: "C4:7F:51:00:10:02", Name: "UR-100 #2", RSSI: -63},
		},
		Tags: []reader.TagObservation{
			{EPC: "E2801160600002084A6B1F4A", TID: "E2801160200074CF", RSSI: -52.5},
			{EPC: "E2801160600002084A6B1F4B", TID: "E2801160200074D0", RSSI: -61},
			{EPC: "300833B2DDD9014000000000", TID: "E2003412013AFC00", RSSI: -67.5, UserMemory: "0000"},
		},
		Latency:     20 * time.Millisecond,
		TagInterval: 150 * time.Millisecond,
		Power:       30,
		Battery:     87,
	}
}

// Driver implements reader.Driver.
type Driver struct {
	opts   Options
	logger *logrus.Logger

	mu        sync.Mutex
	handler   reader.Handler
	power     int
	scanStop  context.CancelFunc
	invStop   context.CancelFunc
	linkStop  context.CancelFunc
	connected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a simulated reader. A nil opts means DefaultOptions.
func New(opts *Options) *Driver {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.TagInterval <= 0 {
		o.TagInterval = DefaultOptions().TagInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		opts:    o,
		logger:  o.Logger,
		handler: reader.NopHandler{},
		power:   o.Power,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *Driver) SetHandler(h reader.Handler) {
	if h == nil {
		h = reader.NopHandler{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *Driver) Connected() bool {
	return d.connected.Load()
}

func (d *Driver) SendCommand(ctx context.Context, cmd reader.Command) error {
	if err := d.ctx.Err(); err != nil {
		return reader.ErrDriverClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.logger.WithField("command", cmd.String()).Debug("sim: command received")

	switch cmd.Kind {
	case reader.CmdStartScan:
		d.startLoop(&d.scanStop, "sim-scan", d.opts.Latency, d.advertise)
		return nil
	case reader.CmdStopScan:
		d.stopLoop(&d.scanStop)
		return nil
	case reader.CmdConnect:
		if d.connected.Load() {
			return reader.ErrAlreadyConnected
		}
		d.later(func(h reader.Handler) {
			if !d.known(cmd.Address) {
				h.OnConnectFailed(fmt.Sprintf("peripheral %s not in range", cmd.Address))
				return
			}
			d.connected.Store(true)
			h.OnConnected()
			d.scheduleLinkLoss()
		})
		return nil
	}

	if !d.connected.Load() {
		return &reader.ConnectionError{State: reader.NotConnected, Msg: cmd.Kind.String()}
	}

	switch cmd.Kind {
	case reader.CmdReset:
		d.stopLoop(&d.invStop)
	case reader.CmdDisconnect:
		d.stopLoop(&d.invStop)
		d.stopLoop(&d.linkStop)
		d.later(func(h reader.Handler) {
			if d.connected.CompareAndSwap(true, false) {
				h.OnDisconnected()
			}
		})
	case reader.CmdStartInventory:
		d.startLoop(&d.invStop, "sim-inventory", d.opts.TagInterval, d.report)
	case reader.CmdStopInventory:
		d.stopLoop(&d.invStop)
	case reader.CmdGetPower:
		d.mu.Lock()
		power := d.power
		d.mu.Unlock()
		d.later(func(h reader.Handler) {
			h.OnResponse(reader.OpGetPower, strconv.Itoa(power))
		})
	case reader.CmdSetPower:
		if len(cmd.Args) != 4 {
			return fmt.Errorf("set power: want 4 args, got %d", len(cmd.Args))
		}
		level, err := strconv.Atoi(cmd.Args[2])
		result := "0"
		if err == nil && level >= 1 && level <= 30 {
			d.mu.Lock()
			d.power = level
			d.mu.Unlock()
			result = "1"
		}
		d.later(func(h reader.Handler) {
			h.OnResponse(reader.OpSetPower, result)
		})
	case reader.CmdGetBattery:
		d.later(func(h reader.Handler) {
			h.OnResponse(reader.OpBattery, strconv.Itoa(d.opts.Battery))
		})
	default:
		return fmt.Errorf("%w: %s", reader.ErrUnsupportedCommand, cmd.Kind)
	}
	return nil
}

// Close stops every background loop and waits for pending answers.
func (d *Driver) Close() error {
	d.cancel()
	d.wg.Wait()
	d.connected.Store(false)
	return nil
}

// DropLink reports an unsolicited link loss. It does nothing when no
// link is up.
func (d *Driver) DropLink() {
	if !d.connected.CompareAndSwap(true, false) {
		return
	}
	d.stopLoop(&d.invStop)
	d.stopLoop(&d.linkStop)
	d.logger.Info("sim: link lost")
	d.currentHandler().OnDisconnected()
}

// CheckAdapter always succeeds; the simulated radio is never off.
func (d *Driver) CheckAdapter() error {
	return nil
}

func (d *Driver) scheduleLinkLoss() {
	after := d.opts.LinkLossAfter
	if after <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.linkStop != nil {
		d.linkStop()
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.linkStop = cancel

	d.wg.Add(1)
	groutine.Go(ctx, "sim-link-loss", func(ctx context.Context) {
		defer d.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(after):
		}
		d.DropLink()
	})
}

func (d *Driver) currentHandler() reader.Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler
}

func (d *Driver) known(address string) bool {
	for _, p := range d.opts.Peripherals {
		if p.Address == address {
			return true
		}
	}
	return false
}

// later answers after the configured latency unless the driver is closed.
func (d *Driver) later(fn func(h reader.Handler)) {
	d.wg.Add(1)
	groutine.Go(d.ctx, "sim-answer", func(ctx context.Context) {
		defer d.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.opts.Latency):
		}
		fn(d.currentHandler())
	})
}

func (d *Driver) startLoop(stop *context.CancelFunc, name string, every time.Duration, step func(h reader.Handler, i int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if *stop != nil {
		return
	}
	if every <= 0 {
		every = time.Millisecond
	}

	ctx, cancel := context.WithCancel(d.ctx)
	*stop = cancel

	d.wg.Add(1)
	groutine.Go(ctx, name, func(ctx context.Context) {
		defer d.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				step(d.currentHandler(), i)
			}
		}
	})
}

func (d *Driver) stopLoop(stop *context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if *stop != nil {
		(*stop)()
		*stop = nil
	}
}

func (d *Driver) advertise(h reader.Handler, i int) {
	if len(d.opts.Peripherals) == 0 {
		return
	}
	h.OnPeripheralDiscovered(d.opts.Peripherals[i%len(d.opts.Peripherals)])
}

func (d *Driver) report(h reader.Handler, i int) {
	if len(d.opts.Tags) == 0 {
		return
	}
	tag := d.opts.Tags[i%len(d.opts.Tags)]
	// wobble the signal a little on every pass
	tag.RSSI += float64(i/len(d.opts.Tags)%3) * 0.5
	h.OnTagObserved(tag)
}
