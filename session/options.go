package session

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/clock"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultNamePrefix   = "UR"
	DefaultEventBuffer  = 256
)

// DefaultPowerLevels are the only transmit levels the reader accepts.
var DefaultPowerLevels = []int{1, 30}

// Options configures a Mediator.
type Options struct {
	// PollInterval is the connectivity poll period.
	PollInterval time.Duration
	// RequestTimeout bounds every one-shot request. Zero waits until the
	// reader answers or the caller's context is done.
	RequestTimeout time.Duration
	PendingPolicy  PendingPolicy
	// AllowedPowerLevels is the set SetPower validates against.
	AllowedPowerLevels []int
	// NamePrefix filters discovered peripherals by display name. Empty
	// accepts every peripheral.
	NamePrefix string
	// EventBuffer is the capacity of the loop's event channel.
	EventBuffer int

	Clock  clock.Clock
	Logger *logrus.Logger
}

// DefaultOptions returns the options matching the stock reader app.
func DefaultOptions() *Options {
	return &Options{
		PollInterval:       DefaultPollInterval,
		PendingPolicy:      PolicyReplace,
		AllowedPowerLevels: append([]int(nil), DefaultPowerLevels...),
		NamePrefix:         DefaultNamePrefix,
		EventBuffer:        DefaultEventBuffer,
	}
}

// withDefaults fills zero-valued fields. NamePrefix is left as given.
func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PendingPolicy == "" {
		o.PendingPolicy = PolicyReplace
	}
	if len(o.AllowedPowerLevels) == 0 {
		o.AllowedPowerLevels = append([]int(nil), DefaultPowerLevels...)
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	return o
}
