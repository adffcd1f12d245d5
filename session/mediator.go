// Package session mediates between callers and a UR-series RFID reader
// driver. The driver reports everything through one opcode-multiplexed
// callback stream; the Mediator turns it into per-request results and into
// deduplicated peripheral, tag and connectivity streams.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/groutine"
	"github.com/srg/uhfsession/internal/reader"
)

// PeripheralSink receives each newly discovered reader once per scan session.
type PeripheralSink func(p reader.Peripheral)

// TagSink receives each distinct tag once until it is cleared.
type TagSink func(t Tag)

// Mediator owns the session state. Every mutation happens on a single loop
// goroutine fed by one buffered channel; caller requests and driver
// callbacks are both submitted to it. Sinks are invoked on the loop and
// must not block.
type Mediator struct {
	driver reader.Driver
	opts   Options
	logger *logrus.Logger

	events    chan func()
	quit      chan struct{}
	loopDone  <-chan struct{}
	closeOnce sync.Once

	allowedPower map[int]struct{}

	// Owned by the loop.
	pending        *registry
	peripherals    *peripheralTracker
	tags           *tagDeduper
	poller         *poller
	scanning       bool
	inventory      bool
	peripheralSink PeripheralSink
	tagSink        TagSink
}

// New creates a Mediator, installs it as driver's handler and starts the loop.
// A nil opts means DefaultOptions.
func New(driver reader.Driver, opts *Options) *Mediator {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := opts.withDefaults()

	m := &Mediator{
		driver:       driver,
		opts:         o,
		logger:       o.Logger,
		events:       make(chan func(), o.EventBuffer),
		quit:         make(chan struct{}),
		allowedPower: make(map[int]struct{}, len(o.AllowedPowerLevels)),
		pending:      newRegistry(o.PendingPolicy),
		peripherals:  newPeripheralTracker(o.NamePrefix, o.Logger),
		tags:         newTagDeduper(),
	}
	for _, lvl := range o.AllowedPowerLevels {
		m.allowedPower[lvl] = struct{}{}
	}
	m.poller = &poller{
		clock:     o.Clock,
		interval:  o.PollInterval,
		connected: driver.Connected,
		post:      m.post,
		logger:    o.Logger,
	}

	driver.SetHandler(&loopHandler{m: m})
	m.loopDone = groutine.Go(context.Background(), "session-loop", m.run)

	return m
}

func (m *Mediator) run(ctx context.Context) {
	m.logger.WithField("goroutine", groutine.GetName(ctx)).Debug("Session loop started")
	for {
		select {
		case fn := <-m.events:
			fn()
		case <-m.quit:
			m.shutdown()
			return
		}
	}
}

func (m *Mediator) shutdown() {
	m.poller.stop()
	m.pending.failAll(ErrClosed)
	m.scanning = false
	m.inventory = false
	m.peripheralSink = nil
	m.tagSink = nil
	m.logger.Debug("Session loop stopped")
}

// Close stops the loop, fails every pending request with ErrClosed and waits
// for the poll ticker to exit. The driver is left open.
func (m *Mediator) Close() error {
	m.closeOnce.Do(func() {
		close(m.quit)
		<-m.loopDone
		m.poller.wait()
	})
	return nil
}

// post queues fn on the loop. It reports false once the Mediator is closed.
func (m *Mediator) post(fn func()) bool {
	select {
	case <-m.quit:
		return false
	default:
	}

	select {
	case m.events <- fn:
		return true
	case <-m.quit:
		return false
	}
}

// exec runs fn on the loop and waits for it to finish or for ctx to be done.
// fn is skipped if ctx is done by the time the loop reaches it; once
// started it runs to completion even if the caller has given up.
func (m *Mediator) exec(ctx context.Context, fn func()) error {
	var skipped error
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		if skipped = ctx.Err(); skipped != nil {
			return
		}
		fn()
	}

	select {
	case <-m.quit:
		return ErrClosed
	default:
	}

	select {
	case m.events <- wrapped:
	case <-m.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return skipped
	case <-ctx.Done():
		select {
		case <-done:
			return skipped
		default:
			return ctx.Err()
		}
	case <-m.loopDone:
		select {
		case <-done:
			return skipped
		default:
			return ErrClosed
		}
	}
}

// request registers a completion for class, sends the commands prepare
// returns and waits for the reader to answer. prepare runs on the loop.
func (m *Mediator) request(ctx context.Context, class RequestClass, prepare func() ([]reader.Command, error)) (outcome, error) {
	var (
		c   *completion
		err error
	)

	execErr := m.exec(ctx, func() {
		if m.pending.busy(class) {
			err = newError(KindBusy, class.String(), nil)
			return
		}

		var cmds []reader.Command
		if cmds, err = prepare(); err != nil {
			return
		}

		var displaced *completion
		if c, displaced, err = m.pending.register(class); err != nil {
			return
		}
		if displaced != nil {
			m.logger.WithFields(logrus.Fields{
				"class":      class,
				"request_id": displaced.id,
			}).Warn("Pending request replaced; previous caller will not be answered")
		}

		for _, cmd := range cmds {
			if err = m.send(ctx, cmd); err != nil {
				m.pending.release(class, c.id)
				return
			}
		}
	})
	if execErr != nil {
		m.releaseLate(class, &c)
		return outcome{}, execErr
	}
	if err != nil {
		return outcome{}, err
	}

	return m.await(ctx, c)
}

func (m *Mediator) await(ctx context.Context, c *completion) (outcome, error) {
	var timeout <-chan time.Time
	if m.opts.RequestTimeout > 0 {
		t := m.opts.Clock.NewTimer(m.opts.RequestTimeout)
		defer t.Stop()
		timeout = t.C()
	}

	select {
	case out := <-c.ch:
		return out, out.err
	case <-ctx.Done():
		m.abandon(c)
		return outcome{}, fmt.Errorf("%s: %w", c.class, ctx.Err())
	case <-timeout:
		m.abandon(c)
		return outcome{}, newError(KindTimeout, fmt.Sprintf("%s after %s", c.class, m.opts.RequestTimeout), nil)
	case <-m.loopDone:
		select {
		case out := <-c.ch:
			return out, out.err
		default:
			return outcome{}, ErrClosed
		}
	}
}

// releaseLate frees the slot registered by a request whose caller stopped
// waiting before the loop finished with it. *c is read on the loop, after
// the request's own step has run.
func (m *Mediator) releaseLate(class RequestClass, c **completion) {
	groutine.Go(context.Background(), "session-release", func(context.Context) {
		m.post(func() {
			if *c != nil {
				m.pending.release(class, (*c).id)
			}
		})
	})
}

// abandon frees c's slot unless a newer request already owns it.
func (m *Mediator) abandon(c *completion) {
	m.post(func() {
		if m.pending.release(c.class, c.id) {
			m.logger.WithFields(logrus.Fields{
				"class":      c.class,
				"request_id": c.id,
			}).Debug("Released abandoned request")
		}
	})
}

// send forwards cmd to the driver. Runs on the loop.
func (m *Mediator) send(ctx context.Context, cmd reader.Command) error {
	if err := m.driver.SendCommand(ctx, cmd); err != nil {
		m.logger.WithError(err).WithField("command", cmd.String()).Warn("Driver rejected command")
		return newError(KindHardwareFailure, cmd.Kind.String(), err)
	}
	m.logger.WithField("command", cmd.String()).Debug("Command sent")
	return nil
}
