package mux

import (
	"encoding/json"
)

// Framer converts between wire lines and envelope payloads.
type Framer interface {
	// Unframe extracts the envelope payload from a received line. ok is false
	// when the line is not protocol traffic (plain tool output, noise).
	Unframe(line []byte) (payload []byte, ok bool)

	// Frame wraps an envelope payload for the wire.
	Frame(payload []byte) []byte
}

// Response is a decoded response envelope.
type Response[ID comparable] struct {
	Error  *RPCError
	ID     ID
	Result json.RawMessage
}

// Event is a decoded event envelope. Kind is the protocol's discriminant
// (the daemon's "event" member, the VM service's "method").
type Event struct {
	Kind   string
	Params json.RawMessage
}

// Dialect describes one wire protocol: how lines are framed, how requests are
// encoded, and how responses and events are recognized. Decoders report
// ok=false for anything that does not match their shape; they must never
// panic on arbitrary input.
type Dialect[ID comparable] interface {
	Framer
	EncodeRequest(id ID, method string, params any) ([]byte, error)
	DecodeResponse(payload []byte) (Response[ID], bool)
	DecodeEvent(payload []byte) (Event, bool)
}

// PlainFramer passes payloads through unchanged: one JSON object per line.
// Lines that do not look like a JSON object are not protocol traffic.
type PlainFramer struct{}

func (PlainFramer) Unframe(line []byte) ([]byte, bool) {
	trimmed := trimSpace(line)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return nil, false
	}
	return trimmed, true
}

func (PlainFramer) Frame(payload []byte) []byte {
	return payload
}

// ExceedsDepth reports whether data nests objects/arrays deeper than max.
// max <= 0 means unlimited. Brackets inside strings are ignored.
func ExceedsDepth(data []byte, max int) bool {
	if max <= 0 {
		return false
	}
	depth := 0
	inString := false
	escaped := false
	for _, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > max {
				return true
			}
		case '}', ']':
			depth--
		}
	}
	return false
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
