package goble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/uhfsession/internal/reader"
)

func TestLineCodec_Encode(t *testing.T) {
	var c LineCodec

	data, err := c.Encode(reader.SetPowerCommand(30))
	require.NoError(t, err)
	assert.Equal(t, "set_power 1 1 30 30\n", string(data))

	data, err = c.Encode(reader.Command{Kind: reader.CmdGetBattery})
	require.NoError(t, err)
	assert.Equal(t, "get_battery\n", string(data))

	_, err = c.Encode(reader.Command{Kind: reader.CmdConnect, Address: "AA:BB"})
	assert.ErrorIs(t, err, reader.ErrUnsupportedCommand, "radio-level commands MUST NOT be encoded")
}

func TestLineCodec_Decode(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Frame
		wantErr bool
	}{
		{name: "battery", line: "R E5 87", want: Frame{Op: reader.OpBattery, Payload: "87"}},
		{name: "payload with spaces", line: "R 73 3 0 12\r", want: Frame{Op: reader.OpGetUserArea, Payload: "3 0 12"}},
		{name: "empty payload", line: "R 11", want: Frame{Op: reader.OpSetPower}},
		{name: "tag", line: "T E200 T01 -52.5", want: Frame{Tag: &reader.TagObservation{EPC: "E200", TID: "T01", RSSI: -52.5}}},
		{name: "tag with user memory", line: "T E200 T01 -40 00FF", want: Frame{Tag: &reader.TagObservation{EPC: "E200", TID: "T01", RSSI: -40, UserMemory: "00FF"}}},
		{name: "bad opcode", line: "R zz 1", wantErr: true},
		{name: "short tag", line: "T E200", wantErr: true},
		{name: "bad rssi", line: "T E200 T01 loud", wantErr: true},
		{name: "unknown kind", line: "X 1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LineCodec{}.Decode([]byte(tt.line))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeError(t *testing.T) {
	assert.Nil(t, NormalizeError(nil))
	assert.ErrorIs(t, NormalizeError(errString("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")), reader.ErrBluetoothOff)
	assert.ErrorIs(t, NormalizeError(errString("device not connected")), reader.ErrNotConnected)
	assert.ErrorIs(t, NormalizeError(errString("device already connected")), reader.ErrAlreadyConnected)

	other := errString("att: invalid handle")
	assert.Equal(t, other, NormalizeError(other))
}

type errString string

func (e errString) Error() string { return string(e) }
