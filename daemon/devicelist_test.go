package daemon

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/yoloswe/flx/machine"
)

func TestDeviceList(t *testing.T) {
	c, conn := newTestClient(t)

	type result struct {
		err  error
		list *DeviceList
	}
	done := make(chan result, 1)
	go func() {
		l, err := c.TrackDevices(testContext(t))
		done <- result{list: l, err: err}
	}()

	req := conn.ExpectRequest(t, machine.MethodDeviceEnable)
	conn.Push(fmt.Sprintf(`[{"id":%s}]`, req.ID))
	req = conn.ExpectRequest(t, machine.MethodDeviceGetDevices)
	conn.Push(fmt.Sprintf(`[{"id":%s,"result":[{"id":"macos","name":"macOS"},{"id":"chrome","name":"Chrome"}]}]`, req.ID))

	r := <-done
	require.NoError(t, r.err)
	l := r.list
	defer l.Close()

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Chrome", snap[0].Name)
	assert.Equal(t, "macOS", snap[1].Name)

	conn.Push(`[{"event":"device.added","params":{"id":"emulator-5554","name":"sdk gphone64","emulator":true}}]`)
	require.Eventually(t, func() bool {
		_, ok := l.Lookup("emulator-5554")
		return ok
	}, time.Second, 10*time.Millisecond)

	conn.Push(`[{"event":"device.removed","params":{"id":"macos","name":"macOS"}}]`)
	require.Eventually(t, func() bool {
		_, ok := l.Lookup("macos")
		return !ok
	}, time.Second, 10*time.Millisecond)

	d, ok := l.Lookup("emulator-5554")
	require.True(t, ok)
	assert.True(t, d.Emulator)
	assert.Len(t, l.Snapshot(), 2)

	select {
	case <-l.Changes():
	default:
		t.Fatal("expected a change signal")
	}
}

func TestDeviceList_StopsWhenDaemonExits(t *testing.T) {
	c, conn := newTestClient(t)

	go func() {
		req := conn.ExpectRequest(t, machine.MethodDeviceEnable)
		conn.Push(fmt.Sprintf(`[{"id":%s}]`, req.ID))
		req = conn.ExpectRequest(t, machine.MethodDeviceGetDevices)
		conn.Push(fmt.Sprintf(`[{"id":%s,"result":[{"id":"macos","name":"macOS"}]}]`, req.ID))
	}()
	l, err := c.TrackDevices(testContext(t))
	require.NoError(t, err)

	conn.Hangup()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("tracking did not stop")
	}
	_, ok := l.Lookup("macos")
	assert.True(t, ok, "last snapshot stays readable")
}

func TestDeviceList_RemovedWhileSeeding(t *testing.T) {
	c, conn := newTestClient(t)

	type result struct {
		err  error
		list *DeviceList
	}
	done := make(chan result, 1)
	go func() {
		l, err := c.TrackDevices(testContext(t))
		done <- result{list: l, err: err}
	}()

	req := conn.ExpectRequest(t, machine.MethodDeviceEnable)
	conn.Push(fmt.Sprintf(`[{"id":%s}]`, req.ID))
	req = conn.ExpectRequest(t, machine.MethodDeviceGetDevices)
	// The device is unplugged after the daemon built its answer but before
	// the answer was read.
	conn.Push(
		`[{"event":"device.removed","params":{"id":"chrome","name":"Chrome"}}]`,
		fmt.Sprintf(`[{"id":%s,"result":[{"id":"macos","name":"macOS"},{"id":"chrome","name":"Chrome"}]}]`, req.ID),
	)

	r := <-done
	require.NoError(t, r.err)
	defer r.list.Close()

	require.Eventually(t, func() bool {
		_, ok := r.list.Lookup("chrome")
		return !ok
	}, time.Second, 10*time.Millisecond)
	_, ok := r.list.Lookup("macos")
	assert.True(t, ok)
}
