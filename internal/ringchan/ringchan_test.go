package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_ForceSendOverwritesOldest(t *testing.T) {
	// GOAL: Verify a full channel keeps the newest values and never blocks
	//
	// TEST SCENARIO: Send 5 values into capacity 3 → first two dropped → last three readable in order

	rc := New[int](3)
	for i := 1; i <= 5; i++ {
		rc.ForceSend(i)
	}

	assert.Equal(t, 3, rc.Len())
	m := rc.GetMetrics()
	assert.Equal(t, int64(5), m.Written)
	assert.Equal(t, int64(2), m.Overwritten, "two oldest values MUST be overwritten")

	var got []int
	for {
		v, ok := rc.TryReceive()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
}

func TestRingChannel_SinkAndClose(t *testing.T) {
	rc := New[string](2)
	sink := rc.Sink()

	sink("a")
	rc.Close()
	rc.Close()
	sink("b")

	var got []string
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []string{"a"}, got, "sends after Close MUST be ignored")
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	require.Panics(t, func() { New[int](0) })
}
