package session

import (
	"errors"
	"fmt"
)

// Kind classifies session failures. The values double as method-channel error codes.
type Kind string

const (
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindAddressNotFound Kind = "ADDRESS_NOT_FOUND"
	KindTagNotFound     Kind = "TAG_NOT_FOUND"
	KindHardwareFailure Kind = "HARDWARE_FAILURE"
	KindUnavailable     Kind = "UNAVAILABLE"
	KindTimeout         Kind = "TIMEOUT"
	KindBusy            Kind = "BUSY"
	KindClosed          Kind = "CLOSED"
)

var kindText = map[Kind]string{
	KindInvalidArgument: "invalid argument",
	KindAddressNotFound: "address not found",
	KindTagNotFound:     "tag not found",
	KindHardwareFailure: "hardware failure",
	KindUnavailable:     "unavailable",
	KindTimeout:         "request timed out",
	KindBusy:            "request already pending",
	KindClosed:          "session closed",
}

// Error is the error type returned by every Mediator operation.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	text := kindText[e.Kind]
	if text == "" {
		text = string(e.Kind)
	}
	if e.Msg != "" {
		text = fmt.Sprintf("%s: %s", text, e.Msg)
	}
	if e.Err != nil {
		text = fmt.Sprintf("%s: %v", text, e.Err)
	}
	return text
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by Kind. An Unavailable error is also a HardwareFailure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindHardwareFailure && e.Kind == KindUnavailable
}

var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrAddressNotFound = &Error{Kind: KindAddressNotFound}
	ErrTagNotFound     = &Error{Kind: KindTagNotFound}
	ErrHardwareFailure = &Error{Kind: KindHardwareFailure}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrBusy            = &Error{Kind: KindBusy}
	ErrClosed          = &Error{Kind: KindClosed}
)

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return ""
}
