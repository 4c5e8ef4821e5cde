package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/yoloswe/flx/internal/testutil"
	"github.com/bazelment/yoloswe/flx/machine"
	"github.com/bazelment/yoloswe/flx/transport"
)

const appStartLine = `[{"event":"app.start","params":{"appId":"a1b2","deviceId":"macos","directory":"/work/app","supportsRestart":true,"launchMode":"run","mode":"debug"}}]`

func newTestClient(t *testing.T) (*Client, *testutil.Conn) {
	t.Helper()
	conn := testutil.NewConn()
	c := NewClient(conn, Options{StopTimeout: 50 * time.Millisecond})
	t.Cleanup(func() {
		conn.Hangup()
		c.Close(context.Background())
	})
	return c, conn
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func started(t *testing.T, c *Client, conn *testutil.Conn) {
	t.Helper()
	conn.Push(appStartLine)
	require.Eventually(t, func() bool { return c.State() == StateKnown }, time.Second, 5*time.Millisecond)
}

func TestClient_ControlBeforeStartSendsNothing(t *testing.T) {
	c, conn := newTestClient(t)
	ctx := testContext(t)

	_, err := c.Reload(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotStarted)
	var nse *NotStartedError
	require.ErrorAs(t, err, &nse)
	assert.Equal(t, "reload", nse.Op)

	_, err = c.Restart(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, c.Detach(ctx), ErrNotStarted)
	assert.ErrorIs(t, c.Stop(ctx), ErrNotStarted)
	_, err = c.CallServiceExtension(ctx, "ext.flutter.debugPaint", nil)
	assert.ErrorIs(t, err, ErrNotStarted)

	assert.Zero(t, conn.BytesWritten())
	assert.Equal(t, StateUnknown, c.State())
}

func TestClient_StartSurvivesOutputBurst(t *testing.T) {
	conn := testutil.NewConn()
	lines := []string{appStartLine}
	for i := range 200 {
		lines = append(lines, fmt.Sprintf("build output line %d", i))
	}
	conn.Push(lines...)

	c := NewClient(conn, Options{StopTimeout: 50 * time.Millisecond})
	t.Cleanup(func() {
		conn.Hangup()
		c.Close(context.Background())
	})

	st, err := c.WaitFor(testContext(t), func(s Status) bool { return s.State == StateKnown })
	require.NoError(t, err)
	assert.Equal(t, "a1b2", st.AppID)
}

func TestClient_StopSurvivesOutputBurst(t *testing.T) {
	c, conn := newTestClient(t)
	started(t, c, conn)

	lines := []string{`[{"event":"app.stop","params":{"appId":"a1b2","error":"boom"}}]`}
	for i := range 200 {
		lines = append(lines, fmt.Sprintf(`[{"event":"app.log","params":{"appId":"a1b2","log":"line %d"}}]`, i))
	}
	conn.Push(lines...)

	select {
	case <-c.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("app.stop was not applied")
	}
	assert.Equal(t, "boom", c.Status().StopError)
}

func TestClient_Reload(t *testing.T) {
	c, conn := newTestClient(t)
	started(t, c, conn)
	assert.Equal(t, "a1b2", c.AppID())

	type result struct {
		err error
		res machine.RestartResult
	}
	done := make(chan result, 1)
	go func() {
		res, err := c.Reload(testContext(t))
		done <- result{res: res, err: err}
	}()

	req := conn.ExpectRequest(t, machine.MethodAppRestart)
	assert.JSONEq(t, `{"appId":"a1b2","fullRestart":false,"reason":"manual"}`, string(req.Params))
	conn.Push(fmt.Sprintf(`[{"id":%s,"result":{"code":0,"message":"Reloaded 1 of 512 libraries"}}]`, req.ID))

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "Reloaded 1 of 512 libraries", r.res.Message)
}

func TestClient_RestartRejected(t *testing.T) {
	c, conn := newTestClient(t)
	started(t, c, conn)

	done := make(chan error, 1)
	go func() {
		_, err := c.Restart(testContext(t))
		done <- err
	}()

	req := conn.ExpectRequest(t, machine.MethodAppRestart)
	assert.JSONEq(t, `{"appId":"a1b2","fullRestart":true,"reason":"manual"}`, string(req.Params))
	conn.Push(fmt.Sprintf(`[{"id":%s,"result":{"code":1,"message":"compile error"}}]`, req.ID))

	err := <-done
	assert.ErrorIs(t, err, ErrRestartFailed)
	assert.Contains(t, err.Error(), "compile error")
}

func TestClient_StopEventForOtherAppIsIgnored(t *testing.T) {
	c, conn := newTestClient(t)
	started(t, c, conn)

	conn.Push(`[{"event":"app.stop","params":{"appId":"other"}}]`)
	conn.Push(`[{"event":"app.started","params":{"appId":"a1b2"}}]`)
	_, err := c.WaitStarted(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, StateKnown, c.State())

	conn.Push(`[{"event":"app.stop","params":{"appId":"a1b2"}}]`)
	select {
	case <-c.Stopped():
	case <-time.After(time.Second):
		t.Fatal("not stopped")
	}

	before := conn.BytesWritten()
	_, err = c.Reload(testContext(t))
	assert.ErrorIs(t, err, ErrAppStopped)
	assert.Equal(t, before, conn.BytesWritten())
}

func TestClient_ProcessExitStops(t *testing.T) {
	c, conn := newTestClient(t)
	started(t, c, conn)

	conn.Hangup()
	select {
	case <-c.Stopped():
	case <-time.After(time.Second):
		t.Fatal("not stopped")
	}
	assert.Equal(t, StateStopped, c.State())
	assert.ErrorIs(t, c.Stop(testContext(t)), ErrAppStopped)
}

func TestClient_WaitDebugPort(t *testing.T) {
	c, conn := newTestClient(t)

	done := make(chan machine.AppDebugPortEvent, 1)
	go func() {
		ev, err := c.WaitDebugPort(testContext(t))
		assert.NoError(t, err)
		done <- ev
	}()

	conn.Push(
		appStartLine,
		`[{"event":"app.progress","params":{"appId":"a1b2","id":"1","progressId":"hot.reload","message":"Syncing files"}}]`,
		`[{"event":"app.debugPort","params":{"appId":"a1b2","port":54321,"wsUri":"ws://127.0.0.1:54321/abc=/ws","baseUri":"file:///data/"}}]`,
	)

	ev := <-done
	assert.Equal(t, "ws://127.0.0.1:54321/abc=/ws", ev.WSURI)
	assert.Equal(t, 54321, ev.Port)
	require.Eventually(t, func() bool {
		p := c.Status().Progress
		return p != nil && p.Message == "Syncing files"
	}, time.Second, 5*time.Millisecond)
}

func TestClient_WaitDebugPortFailsWhenStopped(t *testing.T) {
	c, conn := newTestClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := c.WaitDebugPort(testContext(t))
		done <- err
	}()
	conn.Push(`[{"event":"app.stop","params":{"appId":"a1b2","error":"Gradle build failed"}}]`)

	assert.ErrorIs(t, <-done, ErrAppStopped)
	assert.Equal(t, "Gradle build failed", c.Status().StopError)
}

func TestClient_WebLaunchURL(t *testing.T) {
	c, conn := newTestClient(t)
	conn.Push(`[{"event":"app.webLaunchUrl","params":{"url":"http://localhost:51234","launched":true}}]`)

	st, err := c.WaitFor(testContext(t), func(s Status) bool { return s.WebLaunchURL != "" })
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:51234", st.WebLaunchURL)
}

func TestClient_Logs(t *testing.T) {
	c, conn := newTestClient(t)

	logs := c.Logs()
	defer logs.Close()
	conn.Push(`[{"event":"app.log","params":{"appId":"a1b2","log":"flutter: hello"}}]`)

	ev, err := logs.Next(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "flutter: hello", ev.Log)
}

func TestClient_CloseStopsRunningApp(t *testing.T) {
	conn := testutil.NewConn()
	c := NewClient(conn, Options{})
	started(t, c, conn)

	done := make(chan error, 1)
	go func() { done <- c.Close(testContext(t)) }()

	req := conn.ExpectRequest(t, machine.MethodAppStop)
	assert.JSONEq(t, `{"appId":"a1b2"}`, string(req.Params))
	conn.Push(fmt.Sprintf(`[{"id":%s,"result":true}]`, req.ID))

	require.NoError(t, <-done)
	assert.True(t, conn.Closed())
	require.NoError(t, c.Close(testContext(t)))
}

func TestClient_CloseBeforeStartSendsNothing(t *testing.T) {
	conn := testutil.NewConn()
	c := NewClient(conn, Options{})

	require.NoError(t, c.Close(testContext(t)))
	assert.Zero(t, conn.BytesWritten())
	assert.True(t, conn.Closed())
}

func TestStart_MissingExecutable(t *testing.T) {
	_, err := Start(testContext(t), Options{FlutterPath: "/nonexistent/flutter", ProjectDir: t.TempDir()})
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrSpawn)
	assert.False(t, errors.Is(err, ErrNotStarted))
}
