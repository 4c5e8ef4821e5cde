package vmservice

import (
	"bytes"
	"encoding/json"

	"github.com/bazelment/yoloswe/flx/mux"
)

// Dialect is the mux.Dialect for the VM service's JSON-RPC 2.0 protocol.
// Ids are opaque strings.
type Dialect struct {
	mux.PlainFramer
	// MaxDepth is the deepest nesting accepted; 0 means unlimited. Inspector
	// and object graph results nest deeply, so the default is 0.
	MaxDepth int
}

var _ mux.Dialect[string] = Dialect{}

// Field order is wire order.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func (Dialect) EncodeRequest(id, method string, params any) ([]byte, error) {
	return json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
}

type envelope struct {
	Error  *mux.RPCError   `json:"error"`
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
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

// DecodeResponse recognizes an envelope with a string id and no method.
func (d Dialect) DecodeResponse(payload []byte) (mux.Response[string], bool) {
	env, ok := d.decode(payload)
	if !ok || env.Method != "" || len(env.ID) == 0 {
		return mux.Response[string]{}, false
	}
	var id string
	if err := json.Unmarshal(env.ID, &id); err != nil {
		return mux.Response[string]{}, false
	}
	if env.Error == nil && len(env.Result) == 0 {
		return mux.Response[string]{}, false
	}
	return mux.Response[string]{ID: id, Result: env.Result, Error: env.Error}, true
}

// DecodeEvent recognizes a notification: a method and no id.
func (d Dialect) DecodeEvent(payload []byte) (mux.Event, bool) {
	env, ok := d.decode(payload)
	if !ok || env.Method == "" || (len(env.ID) > 0 && !bytes.Equal(env.ID, []byte("null"))) {
		return mux.Event{}, false
	}
	return mux.Event{Kind: env.Method, Params: env.Params}, true
}
