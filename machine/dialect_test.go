package machine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect_Unframe(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
		ok   bool
	}{
		{name: "response", line: `[{"id":2}]`, want: `{"id":2}`, ok: true},
		{name: "padded", line: " [ {\"event\":\"x\"} ] \r", want: `{"event":"x"}`, ok: true},
		{name: "unbracketed object", line: `{"id":2}`, ok: false},
		{name: "plain text", line: "Launching lib/main.dart on macOS in debug mode...", ok: false},
		{name: "bracketed text", line: "[   +12 ms] executing: xcrun", ok: false},
		{name: "missing close", line: `[{"id":2}`, ok: false},
		{name: "empty array", line: `[]`, ok: false},
		{name: "empty", line: ``, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Dialect{}.Unframe([]byte(tt.line))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, string(got))
			}
		})
	}
}

func TestDialect_ResponseWithEmptyResult(t *testing.T) {
	d := Dialect{MaxDepth: DefaultMaxDepth}

	payload, ok := d.Unframe([]byte(`[{"id":2}]`))
	require.True(t, ok)
	resp, ok := d.DecodeResponse(payload)
	require.True(t, ok)
	assert.Equal(t, uint64(2), resp.ID)
	assert.Empty(t, resp.Result)
	assert.Nil(t, resp.Error)

	_, ok = d.DecodeEvent(payload)
	assert.False(t, ok)

	_, ok = d.Unframe([]byte(`{"id":2}`))
	assert.False(t, ok, "unbracketed objects are plain text")
}

func TestDialect_EventIsNotResponse(t *testing.T) {
	d := Dialect{MaxDepth: DefaultMaxDepth}
	payload := []byte(`{"event":"device.added","params":{"id":"macos","name":"macOS"}}`)

	_, ok := d.DecodeResponse(payload)
	assert.False(t, ok)

	ev, ok := d.DecodeEvent(payload)
	require.True(t, ok)
	assert.Equal(t, EventDeviceAdded, ev.Kind)

	var dev Device
	require.NoError(t, json.Unmarshal(ev.Params, &dev))
	assert.Equal(t, Device{ID: "macos", Name: "macOS"}, dev)
}

func TestDialect_ToolRequestIsNotResponse(t *testing.T) {
	d := Dialect{}
	_, ok := d.DecodeResponse([]byte(`{"id":1,"method":"app.exposeUrl","params":{"url":"http://localhost"}}`))
	assert.False(t, ok)
}

func TestDialect_ErrorMember(t *testing.T) {
	d := Dialect{}

	resp, ok := d.DecodeResponse([]byte(`{"id":3,"error":"no app with id abc","trace":"#0 main"}`))
	require.True(t, ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "no app with id abc", resp.Error.Message)
	assert.JSONEq(t, `"#0 main"`, string(resp.Error.Data))

	resp, ok = d.DecodeResponse([]byte(`{"id":4,"error":{"code":-32000,"message":"boom"}}`))
	require.True(t, ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
	assert.Equal(t, "boom", resp.Error.Message)

	resp, ok = d.DecodeResponse([]byte(`{"id":5,"error":null,"result":true}`))
	require.True(t, ok)
	assert.Nil(t, resp.Error)
}

func TestDialect_MalformedInput(t *testing.T) {
	d := Dialect{MaxDepth: DefaultMaxDepth}
	inputs := []string{
		`{`,
		`{"id":"one"}`,
		`{"event":42}`,
		`{"id":-1}`,
		`{"id":1,"result":` + strings.Repeat("[", 200) + strings.Repeat("]", 200) + `}`,
	}
	for _, in := range inputs {
		_, ok := d.DecodeResponse([]byte(in))
		assert.False(t, ok, in)
		_, ok = d.DecodeEvent([]byte(in))
		assert.False(t, ok, in)
	}
}

func TestDialect_RequestRoundTrip(t *testing.T) {
	d := Dialect{}
	payload, err := d.EncodeRequest(7, MethodDeviceForward, map[string]any{"deviceId": "emulator-5554", "port": 8181})
	require.NoError(t, err)

	line := d.Frame(payload)
	assert.True(t, strings.HasPrefix(string(line), "[{"))
	assert.True(t, strings.HasSuffix(string(line), "}]"))

	inner, ok := d.Unframe(line)
	require.True(t, ok)
	var got struct {
		Params map[string]any `json:"params"`
		Method string         `json:"method"`
		ID     uint64         `json:"id"`
	}
	require.NoError(t, json.Unmarshal(inner, &got))
	assert.Equal(t, uint64(7), got.ID)
	assert.Equal(t, MethodDeviceForward, got.Method)
	assert.Equal(t, map[string]any{"deviceId": "emulator-5554", "port": float64(8181)}, got.Params)

	payload, err = d.EncodeRequest(8, MethodDaemonVersion, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":8,"method":"daemon.version"}`, string(payload))
}
