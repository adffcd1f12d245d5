package goble

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/srg/uhfsession/internal/reader"
)

// Frame is one decoded notification line.
type Frame struct {
	// Op and Payload are set for response frames.
	Op      reader.Opcode
	Payload string
	// Tag is set for tag frames.
	Tag *reader.TagObservation
}

// Codec converts commands to characteristic writes and notification lines
// to frames. The vendor binary protocol plugs in here.
type Codec interface {
	Encode(cmd reader.Command) ([]byte, error)
	Decode(line []byte) (Frame, error)
}

var ErrMalformedFrame = errors.New("malformed frame")

// LineCodec is a newline-delimited text protocol used by development
// firmware and bench bridges:
//
//	command:  get_power\n            set_power 1 1 30 30\n
//	response: R 13 30\n              (opcode in hex, payload is the rest of the line)
//	tag:      T <epc> <tid> <rssi> [user]\n
type LineCodec struct{}

func (LineCodec) Encode(cmd reader.Command) ([]byte, error) {
	switch cmd.Kind {
	case reader.CmdConnect, reader.CmdDisconnect, reader.CmdStartScan, reader.CmdStopScan:
		return nil, fmt.Errorf("%w: %s is handled by the radio", reader.ErrUnsupportedCommand, cmd.Kind)
	}

	var sb strings.Builder
	sb.WriteString(cmd.Kind.String())
	for _, arg := range cmd.Args {
		sb.WriteByte(' ')
		sb.WriteString(arg)
	}
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

func (LineCodec) Decode(line []byte) (Frame, error) {
	text := strings.TrimRight(string(line), "\r\n")
	kind, rest, _ := strings.Cut(text, " ")

	switch kind {
	case "R":
		opText, payload, _ := strings.Cut(rest, " ")
		op, err := strconv.ParseUint(opText, 16, 16)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: bad opcode %q", ErrMalformedFrame, opText)
		}
		return Frame{Op: reader.Opcode(op), Payload: payload}, nil
	case "T":
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			return Frame{}, fmt.Errorf("%w: tag needs epc, tid and rssi: %q", ErrMalformedFrame, text)
		}
		rssi, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: bad rssi %q", ErrMalformedFrame, fields[2])
		}
		tag := &reader.TagObservation{EPC: fields[0], TID: fields[1], RSSI: rssi}
		if len(fields) > 3 {
			tag.UserMemory = fields[3]
		}
		return Frame{Tag: tag}, nil
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrMalformedFrame, text)
	}
}
