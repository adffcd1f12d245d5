package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/srg/uhfsession/internal/clock"
)

// WaitTimeout bounds every wait on asynchronous session output in tests.
const WaitTimeout = 2 * time.Second

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Clock  *clock.Fake
}

// NewTestHelper creates a test helper with a debug logger and a fake clock.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Clock:  clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}

// Collector gathers values delivered to a sink from any goroutine.
type Collector[T any] struct {
	ch chan T
}

func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{ch: make(chan T, 256)}
}

// Sink returns the callback that feeds the collector.
func (c *Collector[T]) Sink() func(T) {
	return func(v T) {
		c.ch <- v
	}
}

// Next waits for the next value.
func (c *Collector[T]) Next(t *testing.T) T {
	t.Helper()
	select {
	case v := <-c.ch:
		return v
	case <-time.After(WaitTimeout):
		require.FailNow(t, "timed out waiting for sink delivery")
		var zero T
		return zero
	}
}

// ExpectNone asserts that nothing arrives within d.
func (c *Collector[T]) ExpectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case v := <-c.ch:
		require.FailNow(t, "unexpected sink delivery", "%v", v)
	case <-time.After(d):
	}
}

// Len returns the number of values received and not yet consumed.
func (c *Collector[T]) Len() int {
	return len(c.ch)
}
