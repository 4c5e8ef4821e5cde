package daemon

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bazelment/yoloswe/flx/machine"
	"github.com/bazelment/yoloswe/flx/mux"
)

// DeviceList tracks connected devices from device.added and device.removed
// events. It is safe for concurrent use; readers never mutate it.
type DeviceList struct {
	devices map[string]machine.Device
	seen    map[string]struct{} // ids touched by events during seeding
	added   *mux.Stream[machine.Device]
	removed *mux.Stream[machine.Device]
	changes chan struct{}
	done    chan struct{}
	mu      sync.RWMutex
}

// TrackDevices enables device polling, seeds the list from
// device.getDevices and keeps it current until the daemon exits or Close is
// called.
func (c *Client) TrackDevices(ctx context.Context) (*DeviceList, error) {
	l := &DeviceList{
		devices: make(map[string]machine.Device),
		seen:    make(map[string]struct{}),
		added:   c.DeviceAdded(),
		removed: c.DeviceRemoved(),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go l.run()

	if err := c.Enable(ctx); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to enable device polling: %w", err)
	}
	devices, err := c.GetDevices(ctx)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	l.seed(devices)
	return l, nil
}

// seed adds the devices from device.getDevices. Events received while the
// call was in flight are newer, so ids they touched keep the event's state.
func (l *DeviceList) seed(devices []machine.Device) {
	l.mu.Lock()
	for _, d := range devices {
		if _, ok := l.seen[d.ID]; !ok {
			l.devices[d.ID] = d
		}
	}
	l.seen = nil
	l.mu.Unlock()
	l.notify()
}

func (l *DeviceList) run() {
	defer close(l.done)
	addedC, removedC := l.added.C(), l.removed.C()
	for addedC != nil || removedC != nil {
		select {
		case d, ok := <-addedC:
			if !ok {
				addedC = nil
				continue
			}
			l.put(d)
		case d, ok := <-removedC:
			if !ok {
				removedC = nil
				continue
			}
			l.remove(d.ID)
		}
	}
}

func (l *DeviceList) put(d machine.Device) {
	l.mu.Lock()
	l.devices[d.ID] = d
	if l.seen != nil {
		l.seen[d.ID] = struct{}{}
	}
	l.mu.Unlock()
	l.notify()
}

func (l *DeviceList) remove(id string) {
	l.mu.Lock()
	_, ok := l.devices[id]
	delete(l.devices, id)
	if l.seen != nil {
		l.seen[id] = struct{}{}
	}
	l.mu.Unlock()
	if ok {
		l.notify()
	}
}

func (l *DeviceList) notify() {
	select {
	case l.changes <- struct{}{}:
	default:
	}
}

// Snapshot returns the current devices ordered by name.
func (l *DeviceList) Snapshot() []machine.Device {
	l.mu.RLock()
	out := make([]machine.Device, 0, len(l.devices))
	for _, d := range l.devices {
		out = append(out, d)
	}
	l.mu.RUnlock()

	slices.SortFunc(out, func(a, b machine.Device) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Lookup returns the device with the given id.
func (l *DeviceList) Lookup(id string) (machine.Device, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.devices[id]
	return d, ok
}

// Changes signals after the list changed. Signals coalesce; read Snapshot
// after each one.
func (l *DeviceList) Changes() <-chan struct{} {
	return l.changes
}

// Done is closed once tracking has stopped.
func (l *DeviceList) Done() <-chan struct{} {
	return l.done
}

// Close stops tracking. The last snapshot stays readable.
func (l *DeviceList) Close() {
	l.added.Close()
	l.removed.Close()
}
