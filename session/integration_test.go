package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/uhfsession/internal/reader"
	"github.com/srg/uhfsession/internal/reader/sim"
	"github.com/srg/uhfsession/internal/ringchan"
	"github.com/srg/uhfsession/internal/testutils"
)

func TestMediator_WithSimulatedReader(t *testing.T) {
	// GOAL: Verify a full session against the simulated reader
	//
	// TEST SCENARIO: scan → UR readers only → connect → power and battery → inventory dedups repeated tags → disconnect

	helper := testutils.NewTestHelper(t)
	simOpts := sim.DefaultOptions()
	simOpts.Latency = time.Millisecond
	simOpts.TagInterval = 2 * time.Millisecond
	simOpts.Logger = helper.Logger
	drv := sim.New(simOpts)
	defer drv.Close()

	opts := DefaultOptions()
	opts.Logger = helper.Logger
	opts.RequestTimeout = testutils.WaitTimeout
	m := New(drv, opts)
	defer m.Close()

	ctx := context.Background()

	devices := ringchan.New[reader.Peripheral](16)
	require.NoError(t, m.StartScan(ctx, devices.Sink()))
	var first reader.Peripheral
	select {
	case first = <-devices.C():
	case <-time.After(testutils.WaitTimeout):
		t.Fatal("scan MUST discover a reader")
	}
	assert.Contains(t, first.Name, "UR")

	require.Eventually(t, func() bool {
		st, err := m.State(ctx)
		return err == nil && st.Peripherals == 2
	}, testutils.WaitTimeout, 5*time.Millisecond, "both UR readers MUST be tracked, the speaker filtered")
	_, err := m.StopScan(ctx)
	require.NoError(t, err)

	ok, err := m.Connect(ctx, first.Address)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.SetPower(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	power, err := m.GetPower(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, power)

	battery, err := m.GetBatteryLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 87, battery)

	tags := ringchan.New[Tag](16)
	require.NoError(t, m.StartTagInventory(ctx, tags.Sink()))
	require.Eventually(t, func() bool {
		records, err := m.Tags(ctx)
		if err != nil || len(records) != 3 {
			return false
		}
		return records[0].Count > 1
	}, testutils.WaitTimeout, 5*time.Millisecond, "repeated observations MUST merge")
	_, err = m.StopTagInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, tags.Len(), "each tag MUST be delivered once")

	ok, err = m.Disconnect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, drv.Connected())
}
