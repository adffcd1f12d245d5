package main

import (
	"bytes"
	"testing"

	"github.com/srg/uhfsession/internal/reader"
	"github.com/srg/uhfsession/internal/testutils"
	"github.com/srg/uhfsession/session"
)

func TestPrinter_Tags(t *testing.T) {
	buf := new(bytes.Buffer)
	p := newPrinter(buf)

	err := p.tags([]session.Tag{
		{EPC: "E200", TID: "T1", RSSI: -41.5, Count: 3},
		{EPC: "3008", TID: "T2", RSSI: -60, Count: 1, UserMemory: "0000"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The divider line splits the header and the rows into separate column blocks.
	testutils.NewTextAsserter(t).WithOptions(testutils.WithIgnoreTrailingWhitespace(true), testutils.WithTrimSpace(true)).Assert(buf.String(), `
EPC  TID  RSSI  COUNT  USER MEMORY
--------------------------------------------------------------------------------
E200  T1  -41.5 dBm  3
3008  T2  -60.0 dBm  1  0000
`)
}

func TestPrinter_Peripherals(t *testing.T) {
	buf := new(bytes.Buffer)
	p := newPrinter(buf)

	if err := p.peripherals(nil); err != nil {
		t.Fatal(err)
	}
	if err := p.peripherals([]reader.Peripheral{{Address: "AA:BB", Name: "UR100", RSSI: -50}}); err != nil {
		t.Fatal(err)
	}

	testutils.NewTextAsserter(t).WithOptions(testutils.WithIgnoreTrailingWhitespace(true), testutils.WithTrimSpace(true)).Assert(buf.String(), `
No readers discovered
NAME  ADDRESS  RSSI
------------------------------------------------
UR100  AA:BB  -50 dBm
`)
}
