package mux

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoResponse is matched by a *ProtocolError of kind KindNoResponse: the
	// line stream ended before a matching response arrived.
	ErrNoResponse = errors.New("no response before channel closed")

	// ErrMalformed is matched by a *ProtocolError of kind KindMalformed: a line
	// had a recognized envelope but its payload failed to decode.
	ErrMalformed = errors.New("malformed message")

	// ErrClosed is returned by Stream.Next once the line stream has ended.
	ErrClosed = errors.New("stream closed")
)

// ProtocolErrorKind discriminates ProtocolError causes.
type ProtocolErrorKind int

const (
	KindNoResponse ProtocolErrorKind = iota
	KindMalformed
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case KindNoResponse:
		return "no_response"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ProtocolError reports a call that could not be completed from the lines
// observed on the wire.
type ProtocolError struct {
	Cause  error
	Method string
	Line   string
	Kind   ProtocolErrorKind
}

func (e *ProtocolError) Error() string {
	var msg string
	switch e.Kind {
	case KindNoResponse:
		msg = fmt.Sprintf("%s: %v", e.Method, ErrNoResponse)
	default:
		msg = fmt.Sprintf("%s: %v", e.Method, ErrMalformed)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProtocolError) Is(target error) bool {
	switch target {
	case ErrNoResponse:
		return e.Kind == KindNoResponse
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// RPCError is an error member returned by the peer in place of a result.
type RPCError struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Method  string          `json:"-"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
}

func (e *RPCError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
