package machine

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/bazelment/yoloswe/flx/mux"
	"github.com/bazelment/yoloswe/flx/transport"
)

// DefaultMaxDepth bounds envelope nesting. Machine protocol payloads are
// shallow; anything deeper is treated as noise.
const DefaultMaxDepth = 128

// Dialect is the mux.Dialect for the machine protocol. Ids are integers.
type Dialect struct {
	// MaxDepth is the deepest nesting accepted; 0 means unlimited.
	MaxDepth int
}

var _ mux.Dialect[uint64] = Dialect{}

// Unframe strips the surrounding "[ ... ]" from a protocol line.
func (Dialect) Unframe(line []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) < 4 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, false
	}
	inner := bytes.TrimSpace(trimmed[1 : len(trimmed)-1])
	if len(inner) < 2 || inner[0] != '{' || inner[len(inner)-1] != '}' {
		return nil, false
	}
	return inner, true
}

// Frame wraps payload in a one-element array.
func (Dialect) Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, '[')
	out = append(out, payload...)
	return append(out, ']')
}

// Field order is wire order.
type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

func (Dialect) EncodeRequest(id uint64, method string, params any) ([]byte, error) {
	return json.Marshal(request{ID: id, Method: method, Params: params})
}

type envelope struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Event  string          `json:"event"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Trace  string          `json:"trace"`
}

func (d Dialect) decode(payload []byte) (envelope, bool) {
	var env envelope
	if mux.ExceedsDepth(payload, d.MaxDepth) {
		return env, false
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, false
	}
	return env, true
}

// DecodeResponse recognizes an envelope carrying an id and no method.
// Requests sent by the tool to the client (app.exposeUrl and friends) carry
// both and are not responses.
func (d Dialect) DecodeResponse(payload []byte) (mux.Response[uint64], bool) {
	env, ok := d.decode(payload)
	if !ok || env.ID == nil || env.Method != "" || env.Event != "" {
		return mux.Response[uint64]{}, false
	}
	resp := mux.Response[uint64]{ID: *env.ID, Result: env.Result}
	if len(env.Error) > 0 && !bytes.Equal(env.Error, []byte("null")) {
		resp.Error = decodeError(env.Error, env.Trace)
	}
	return resp, true
}

// DecodeEvent recognizes an envelope carrying an event name.
func (d Dialect) DecodeEvent(payload []byte) (mux.Event, bool) {
	env, ok := d.decode(payload)
	if !ok || env.Event == "" {
		return mux.Event{}, false
	}
	return mux.Event{Kind: env.Event, Params: env.Params}, true
}

// decodeError maps the tool's error member onto mux.RPCError. The tool sends
// either a bare string or an object.
func decodeError(raw json.RawMessage, trace string) *mux.RPCError {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return &mux.RPCError{Message: msg, Data: traceData(trace)}
	}
	var obj mux.RPCError
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Message != "" || obj.Code != 0) {
		if obj.Data == nil {
			obj.Data = traceData(trace)
		}
		return &obj
	}
	return &mux.RPCError{Message: string(raw), Data: traceData(trace)}
}

func traceData(trace string) json.RawMessage {
	if trace == "" {
		return nil
	}
	data, _ := json.Marshal(trace)
	return data
}

// NewMux creates a multiplexer speaking the machine protocol over conn.
func NewMux(conn transport.Conn, name string, logger *slog.Logger) *mux.Mux[uint64] {
	return mux.New[uint64](conn, Dialect{MaxDepth: DefaultMaxDepth}, &mux.Counter{},
		mux.WithName(name),
		mux.WithLogger(logger),
	)
}
