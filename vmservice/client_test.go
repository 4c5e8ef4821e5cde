package vmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/yoloswe/flx/internal/testutil"
	"github.com/bazelment/yoloswe/flx/mux"
)

func sequence(ids ...string) mux.IDSource[string] {
	var mu sync.Mutex
	next := 0
	return mux.IDFunc[string](func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[next%len(ids)]
		next++
		return id
	})
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *testutil.Conn) {
	t.Helper()
	conn := testutil.NewConn()
	c := NewClient(conn, opts...)
	t.Cleanup(func() { c.Close() })
	return c, conn
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func reply(conn *testutil.Conn, id json.RawMessage, result string) {
	conn.Push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result))
}

func TestClient_OutOfOrderTokens(t *testing.T) {
	c, conn := newTestClient(t, WithIDSource(sequence("a", "b")))

	isolates := []string{"isolates/1", "isolates/2"}
	results := make([]Isolate, len(isolates))
	errs := make([]error, len(isolates))
	var wg sync.WaitGroup
	for i, id := range isolates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.GetIsolate(testContext(t), id)
		}()
	}

	byToken := make(map[string]string)
	for range isolates {
		req := conn.ExpectRequest(t, "getIsolate")
		var token string
		require.NoError(t, json.Unmarshal(req.ID, &token))
		var p isolateParams
		require.NoError(t, json.Unmarshal(req.Params, &p))
		byToken[token] = p.IsolateID
	}
	require.Contains(t, byToken, "a")
	require.Contains(t, byToken, "b")

	for _, token := range []string{"b", "a"} {
		reply(conn, json.RawMessage(`"`+token+`"`),
			fmt.Sprintf(`{"type":"Isolate","id":%q,"name":"main","runnable":true}`, byToken[token]))
	}
	wg.Wait()

	for i, id := range isolates {
		require.NoError(t, errs[i])
		assert.Equal(t, id, results[i].ID)
		assert.True(t, results[i].Runnable)
	}
}

func TestClient_GetVM(t *testing.T) {
	c, conn := newTestClient(t)

	done := make(chan VM, 1)
	go func() {
		vm, err := c.GetVM(testContext(t))
		assert.NoError(t, err)
		done <- vm
	}()

	req := conn.ExpectRequest(t, "getVM")
	reply(conn, req.ID, `{"type":"VM","name":"vm","version":"3.5.0","pid":4321,"isolates":[{"type":"@Isolate","id":"isolates/1","name":"main"}]}`)

	vm := <-done
	assert.Equal(t, "3.5.0", vm.Version)
	require.Len(t, vm.Isolates, 1)
	assert.Equal(t, "isolates/1", vm.Isolates[0].ID)
}

func TestClient_RPCError(t *testing.T) {
	c, conn := newTestClient(t)

	done := make(chan error, 1)
	go func() { done <- c.StreamListen(testContext(t), StreamExtension) }()

	req := conn.ExpectRequest(t, "streamListen")
	assert.JSONEq(t, `{"streamId":"Extension"}`, string(req.Params))
	conn.Push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":103,"message":"Stream already subscribed"}}`, req.ID))

	var rpcErr *mux.RPCError
	require.ErrorAs(t, <-done, &rpcErr)
	assert.Equal(t, 103, rpcErr.Code)
	assert.Equal(t, "streamListen", rpcErr.Method)
}

func TestClient_EventsFilteredByStream(t *testing.T) {
	c, conn := newTestClient(t)

	ext := c.Events(StreamExtension)
	all := c.Events()
	defer ext.Close()
	defer all.Close()

	conn.Push(
		`{"jsonrpc":"2.0","method":"streamNotify","params":{"streamId":"Logging","event":{"kind":"Logging","logRecord":{"message":"hi"}}}}`,
		`{"jsonrpc":"2.0","method":"streamNotify","params":{"streamId":"Extension","event":{"kind":"Extension","extensionKind":"Flutter.Frame","extensionData":{"elapsed":16000}}}}`,
	)

	ctx := testContext(t)
	ev, err := ext.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, StreamExtension, ev.StreamID)
	assert.Equal(t, "Flutter.Frame", ev.Event.ExtensionKind)
	assert.JSONEq(t, `{"elapsed":16000}`, string(ev.Event.ExtensionData))

	ev, err = all.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, StreamLogging, ev.StreamID)
	ev, err = all.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, StreamExtension, ev.StreamID)
}

func TestClient_ConnectionDropFailsPendingCall(t *testing.T) {
	c, conn := newTestClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := c.GetMemoryUsage(testContext(t), "isolates/1")
		done <- err
	}()
	conn.ExpectRequest(t, "getMemoryUsage")
	conn.Hangup()

	assert.ErrorIs(t, <-done, mux.ErrNoResponse)
}

func TestClient_CallServiceExtensionAddsIsolate(t *testing.T) {
	c, conn := newTestClient(t)

	go func() {
		_, _ = c.CallServiceExtension(testContext(t), "ext.app.ping", "isolates/9", map[string]any{"n": 1})
	}()
	req := conn.ExpectRequest(t, "ext.app.ping")
	assert.JSONEq(t, `{"isolateId":"isolates/9","n":1}`, string(req.Params))
	reply(conn, req.ID, `{}`)
}
