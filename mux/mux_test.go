package mux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/yoloswe/flx/internal/testutil"
	"github.com/bazelment/yoloswe/flx/transport"
)

// testDialect is a minimal one-object-per-line protocol with integer ids.
type testDialect struct{ PlainFramer }

type testEnvelope struct {
	ID     *uint64         `json:"id,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Method string          `json:"method,omitempty"`
	Event  string          `json:"event,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (testDialect) EncodeRequest(id uint64, method string, params any) ([]byte, error) {
	env := map[string]any{"id": id, "method": method}
	if params != nil {
		env["params"] = params
	}
	return json.Marshal(env)
}

func (testDialect) DecodeResponse(payload []byte) (Response[uint64], bool) {
	var env testEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || env.ID == nil || env.Method != "" {
		return Response[uint64]{}, false
	}
	return Response[uint64]{ID: *env.ID, Result: env.Result, Error: env.Error}, true
}

func (testDialect) DecodeEvent(payload []byte) (Event, bool) {
	var env testEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
		return Event{}, false
	}
	return Event{Kind: env.Event, Params: env.Params}, true
}

func newTestMux(t *testing.T) (*Mux[uint64], *testutil.Conn) {
	t.Helper()
	conn := testutil.NewConn()
	m := New[uint64](conn, testDialect{}, &Counter{}, WithName("test"))
	m.Start()
	t.Cleanup(func() { m.Close() })
	return m, conn
}

type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     uint64          `json:"id"`
}

func expectRequest(t *testing.T, conn *testutil.Conn) request {
	t.Helper()
	var req request
	require.NoError(t, json.Unmarshal([]byte(conn.Expect(t)), &req))
	return req
}

func TestMux_CallResolvesByID(t *testing.T) {
	m, conn := newTestMux(t)

	const n = 8
	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = CallAs[int](context.Background(), m, "echo", map[string]int{"n": i})
		}(i)
	}

	reqs := make([]request, 0, n)
	for i := 0; i < n; i++ {
		reqs = append(reqs, expectRequest(t, conn))
	}
	// Answer in reverse arrival order.
	for i := len(reqs) - 1; i >= 0; i-- {
		var p struct{ N int }
		require.NoError(t, json.Unmarshal(reqs[i].Params, &p))
		conn.Push(fmt.Sprintf(`{"id":%d,"result":%d}`, reqs[i].ID, p.N))
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, i, results[i])
	}
}

func TestMux_MalformedLinesAreIgnored(t *testing.T) {
	m, conn := newTestMux(t)

	done := make(chan error, 1)
	var got string
	go func() {
		var err error
		got, err = CallAs[string](context.Background(), m, "daemon.version", nil)
		done <- err
	}()
	req := expectRequest(t, conn)

	conn.Push(
		"not json at all",
		"{",
		`{"result":"missing id"}`,
		`{"id":"wrong type"}`,
		`[{"id":1,"result":"bracketed"}]`,
		fmt.Sprintf(`{"id":%d,"method":"looks like a request"}`, req.ID),
	)
	select {
	case <-done:
		t.Fatal("call resolved on a malformed line")
	case <-time.After(50 * time.Millisecond):
	}

	conn.Push(fmt.Sprintf(`{"id":%d,"result":"0.6.1"}`, req.ID))
	require.NoError(t, <-done)
	assert.Equal(t, "0.6.1", got)
}

func TestMux_NoResponseWhenStreamEnds(t *testing.T) {
	m, conn := newTestMux(t)

	done := make(chan error, 1)
	go func() {
		_, err := m.Call(context.Background(), "device.getDevices", nil)
		done <- err
	}()
	conn.Expect(t)
	conn.Hangup()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResponse)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindNoResponse, perr.Kind)
	assert.Equal(t, "device.getDevices", perr.Method)

	// Calls after the end fail the same way instead of hanging.
	_, err = m.Call(context.Background(), "daemon.version", nil)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestMux_RPCError(t *testing.T) {
	m, conn := newTestMux(t)

	done := make(chan error, 1)
	go func() {
		_, err := m.Call(context.Background(), "app.restart", nil)
		done <- err
	}()
	req := expectRequest(t, conn)
	conn.Push(fmt.Sprintf(`{"id":%d,"error":{"code":-32601,"message":"no such method"}}`, req.ID))

	var rpcErr *RPCError
	require.ErrorAs(t, <-done, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "no such method", rpcErr.Message)
	assert.Equal(t, "app.restart", rpcErr.Method)
}

func TestCallAs_MalformedResult(t *testing.T) {
	m, conn := newTestMux(t)

	done := make(chan error, 1)
	go func() {
		_, err := CallAs[int](context.Background(), m, "daemon.version", nil)
		done <- err
	}()
	req := expectRequest(t, conn)
	conn.Push(fmt.Sprintf(`{"id":%d,"result":"not a number"}`, req.ID))

	err := <-done
	assert.ErrorIs(t, err, ErrMalformed)
	assert.NotErrorIs(t, err, ErrNoResponse)
}

func TestCallAs_EmptyResult(t *testing.T) {
	m, conn := newTestMux(t)

	type result struct{ Code int }
	done := make(chan error, 1)
	var got result
	go func() {
		var err error
		got, err = CallAs[result](context.Background(), m, "daemon.shutdown", nil)
		done <- err
	}()
	req := expectRequest(t, conn)
	conn.Push(fmt.Sprintf(`{"id":%d}`, req.ID))

	require.NoError(t, <-done)
	assert.Equal(t, result{}, got)
}

func TestMux_CancelledCallDoesNotAffectOthers(t *testing.T) {
	m, conn := newTestMux(t)

	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		_, err := m.Call(ctx, "slow", nil)
		abandoned <- err
	}()
	slow := expectRequest(t, conn)

	kept := make(chan error, 1)
	go func() {
		_, err := m.Call(context.Background(), "fast", nil)
		kept <- err
	}()
	fast := expectRequest(t, conn)

	cancel()
	assert.ErrorIs(t, <-abandoned, context.Canceled)

	conn.Push(
		fmt.Sprintf(`{"id":%d,"result":1}`, slow.ID),
		fmt.Sprintf(`{"id":%d,"result":2}`, fast.ID),
	)
	assert.NoError(t, <-kept)
}

func TestMux_CallTimeout(t *testing.T) {
	m, _ := newTestMux(t)

	ctx, cancel := WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Call(ctx, "never", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeout_ZeroIsUnbounded(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)
}

func TestMux_SendAfterClose(t *testing.T) {
	m, _ := newTestMux(t)
	require.NoError(t, m.Close())

	_, err := m.Call(context.Background(), "daemon.version", nil)
	assert.ErrorIs(t, err, transport.ErrWrite)
}

func TestSubscribeAs_FanOut(t *testing.T) {
	m, conn := newTestMux(t)

	type device struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	a := SubscribeAs[device](m, "device.added")
	b := SubscribeAs[device](m, "device.added")
	other := SubscribeAs[device](m, "device.removed")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	conn.Push(
		`{"id":7,"result":{"id":"not","name":"an event"}}`,
		`{"event":"device.added","params":{"id":"macos","name":"macOS"}}`,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, s := range []*Stream[device]{a, b} {
		d, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, device{ID: "macos", Name: "macOS"}, d)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, err := other.Next(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscribeAs_SkipsMalformedParams(t *testing.T) {
	m, conn := newTestMux(t)

	type progress struct {
		Finished bool `json:"finished"`
	}
	s := SubscribeAs[progress](m, "app.progress")
	defer s.Close()

	conn.Push(
		`{"event":"app.progress","params":{"finished":"yes"}}`,
		`{"event":"app.progress","params":{"finished":true}}`,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := s.Next(ctx)
	require.NoError(t, err)
	assert.True(t, p.Finished)
}

func TestStream_ChannelView(t *testing.T) {
	m, conn := newTestMux(t)

	events := m.Subscribe()
	conn.Push(`{"event":"daemon.connected","params":{"version":"0.6.1","pid":42}}`)

	select {
	case ev := <-events.C():
		assert.Equal(t, "daemon.connected", ev.Kind)
		assert.JSONEq(t, `{"version":"0.6.1","pid":42}`, string(ev.Params))
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	events.Close()
	events.Close()
	_, ok := <-events.C()
	assert.False(t, ok)
}

func TestStream_NextAfterEnd(t *testing.T) {
	m, conn := newTestMux(t)

	events := m.Subscribe()
	defer events.Close()
	conn.Hangup()

	_, err := events.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMux_Raw(t *testing.T) {
	m, conn := newTestMux(t)

	raw := m.Raw()
	defer raw.Close()
	conn.Push(
		`{"event":"app.log","params":{"log":"structured"}}`,
		"Running Gradle task 'assembleDebug'...",
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	line, err := raw.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Running Gradle task 'assembleDebug'...", line)
}

func TestMux_RequestRoundTrip(t *testing.T) {
	m, conn := newTestMux(t)

	go func() {
		_, _ = m.Call(context.Background(), "device.forward", map[string]any{"deviceId": "emulator-5554", "port": 8080})
	}()
	req := expectRequest(t, conn)

	assert.Equal(t, uint64(1), req.ID)
	assert.Equal(t, "device.forward", req.Method)
	assert.JSONEq(t, `{"deviceId":"emulator-5554","port":8080}`, string(req.Params))
}

func TestProtocolError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &ProtocolError{Kind: KindMalformed, Method: "x", Cause: errors.New("bad")})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.NotErrorIs(t, err, ErrNoResponse)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, "malformed", KindMalformed.String())
}

func TestMux_ObserveEventsIsLossless(t *testing.T) {
	conn := testutil.NewConn()
	m := New[uint64](conn, testDialect{}, &Counter{}, WithBufferSize(2))
	var kinds []string
	m.ObserveEvents(func(ev Event) { kinds = append(kinds, ev.Kind) })
	m.Start()
	t.Cleanup(func() { m.Close() })

	lines := []string{`{"event":"app.start","params":{}}`}
	for i := range 100 {
		lines = append(lines, fmt.Sprintf("plain output %d", i), fmt.Sprintf(`{"id":%d,"result":null}`, i))
	}
	lines = append(lines, `{"event":"app.stop","params":{}}`)
	conn.Push(lines...)
	conn.Hangup()
	<-m.Done()

	assert.Equal(t, []string{"app.start", "app.stop"}, kinds)
}
