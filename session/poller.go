package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/clock"
	"github.com/srg/uhfsession/internal/groutine"
)

// ConnectivitySink receives the driver's connection flag on every poll tick.
type ConnectivitySink func(connected bool)

// poller is the connectivity poll state machine. All methods run on the
// loop; only the ticker goroutine it spawns lives elsewhere and it reaches
// the poller exclusively through post.
type poller struct {
	clock     clock.Clock
	interval  time.Duration
	connected func() bool
	post      func(func()) bool
	logger    *logrus.Logger

	sink       ConnectivitySink
	running    bool
	generation uint64
	lastKnown  bool

	ticker clock.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// start moves the poller to Running. A running poller keeps its timer and
// only picks up the new sink. When the driver is not connected, start
// emits false once and stays Idle.
func (p *poller) start(sink ConnectivitySink) {
	p.sink = sink

	if p.running {
		p.logger.Debug("Connectivity poll already running")
		return
	}

	if !p.connected() {
		p.lastKnown = false
		p.emit(false)
		return
	}

	p.generation++
	gen := p.generation
	p.running = true
	p.lastKnown = true
	p.ticker = p.clock.NewTicker(p.interval)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	ticks := p.ticker.C()
	p.wg.Add(1)
	groutine.Go(ctx, "connectivity-poll", func(ctx context.Context) {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				if !p.post(func() { p.tick(gen) }) {
					return
				}
			}
		}
	})

	p.logger.WithField("interval", p.interval).Info("Connectivity poll started")
}

// stop moves the poller to Idle. Ticks already queued carry a stale
// generation and are discarded.
func (p *poller) stop() {
	if !p.running {
		return
	}
	p.running = false
	p.ticker.Stop()
	p.cancel()
	p.logger.Info("Connectivity poll stopped")
}

func (p *poller) tick(gen uint64) {
	if !p.running || gen != p.generation {
		p.logger.WithField("generation", gen).Debug("Dropping stale poll tick")
		return
	}
	p.lastKnown = p.connected()
	p.emit(p.lastKnown)
}

func (p *poller) emit(connected bool) {
	if p.sink != nil {
		p.sink(connected)
	}
}

// wait blocks until every ticker goroutine has exited. Call it only after
// the loop has stopped.
func (p *poller) wait() {
	p.wg.Wait()
}
