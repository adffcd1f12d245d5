package server

import (
	"encoding/json"
	"errors"

	"github.com/srg/uhfsession/session"
)

// Request is a method call sent by a client.
type Request struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Reply answers exactly one Request.
type Reply struct {
	ID      string     `json:"id"`
	Type    string     `json:"type"`
	Success bool       `json:"success"`
	Result  any        `json:"result,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed method call.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is pushed to the client that owns a stream.
type Event struct {
	Type    string `json:"type"`
	Stream  string `json:"stream"`
	Payload any    `json:"payload"`
}

// MethodError carries an explicit error code through a method handler.
type MethodError struct {
	Code string
	Msg  string
}

func (e *MethodError) Error() string {
	return e.Code + ": " + e.Msg
}

func resultReply(id string, result any) Reply {
	return Reply{ID: id, Type: TypeResult, Success: true, Result: result}
}

func errorReply(id string, err error) Reply {
	return Reply{ID: id, Type: TypeResult, Error: &ErrorBody{Code: errorCode(err), Message: err.Error()}}
}

// errorCode maps an error to its wire code. Session kinds are used as-is,
// except that a closed session is reported as UNAVAILABLE.
func errorCode(err error) string {
	var merr *MethodError
	if errors.As(err, &merr) {
		return merr.Code
	}

	switch kind := session.KindOf(err); kind {
	case "":
		return CodeInternal
	case session.KindClosed:
		return string(session.KindUnavailable)
	default:
		return string(kind)
	}
}
