package goble

import (
	"bytes"
	"errors"

	"github.com/smallnest/ringbuffer"
)

const maxLineLength = 4096

// assembler buffers notification chunks and cuts them into lines. Writes
// come from the BLE stack's notification goroutine, reads from the decode
// worker; the ring buffer is the only shared state.
type assembler struct {
	buf     *ringbuffer.RingBuffer
	scratch []byte
	partial []byte
}

func newAssembler(size int) *assembler {
	return &assembler{
		buf:     ringbuffer.New(size),
		scratch: make([]byte, 512),
	}
}

// write stores as much of data as fits and returns the number of bytes dropped.
func (a *assembler) write(data []byte) (dropped int, err error) {
	if free := a.buf.Free(); len(data) > free {
		dropped = len(data) - free
		data = data[:free]
	}
	if len(data) == 0 {
		return dropped, nil
	}
	if _, err := a.buf.Write(data); err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return dropped + len(data), err
	}
	return dropped, nil
}

// lines drains the buffer and calls emit for each complete line. A line
// longer than maxLineLength is discarded and reported through overflow.
func (a *assembler) lines(emit func(line []byte), overflow func(n int)) error {
	for !a.buf.IsEmpty() {
		n, err := a.buf.TryRead(a.scratch)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			return err
		}
		if n == 0 {
			break
		}
		a.partial = append(a.partial, a.scratch[:n]...)
	}

	for {
		i := bytes.IndexByte(a.partial, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(a.partial[:i], "\r")
		if len(line) > 0 {
			emit(line)
		}
		a.partial = a.partial[i+1:]
	}

	if len(a.partial) > maxLineLength {
		overflow(len(a.partial))
		a.partial = nil
	}
	// compact so the backing array does not grow without bound
	a.partial = append([]byte(nil), a.partial...)
	return nil
}
