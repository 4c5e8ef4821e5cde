package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bazelment/yoloswe/flx/runner"
	"github.com/bazelment/yoloswe/flx/vmservice"
)

// session is one (run client, VM service client) pair.
type session struct {
	createdAt  time.Time
	run        *runner.Client
	vm         *vmservice.Client
	logs       *LogRing
	cancel     context.CancelFunc
	id         ID
	deviceID   string
	deviceName string
	mode       string
	vmURI      string
	frames     atomic.Uint64
	mu         sync.RWMutex
}

func (s *session) setVM(vm *vmservice.Client, uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vm = vm
	s.vmURI = uri
}

func (s *session) vmClient() *vmservice.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vm
}

func (s *session) info() Info {
	st := s.run.Status()

	s.mu.RLock()
	info := Info{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		DeviceID:     s.deviceID,
		DeviceName:   s.deviceName,
		Mode:         s.mode,
		VMServiceURI: s.vmURI,
		VMConnected:  s.vm != nil,
	}
	s.mu.RUnlock()

	info.State = st.State
	info.Started = st.Started
	info.AppID = st.AppID
	info.WebLaunchURL = st.WebLaunchURL
	info.StopError = st.StopError
	info.Frames = s.frames.Load()
	if st.DeviceID != "" {
		info.DeviceID = st.DeviceID
	}
	if st.Mode != "" {
		info.Mode = st.Mode
	}
	if st.Progress != nil && !st.Progress.Finished {
		info.Progress = st.Progress.Message
	}
	if info.VMServiceURI == "" && st.DebugPort != nil {
		info.VMServiceURI = st.DebugPort.WSURI
	}
	return info
}

// Handle gives access to one session. It stays usable after the session is
// removed, but its clients are closed by then.
type Handle struct {
	s *session
}

// ID returns the session id.
func (h *Handle) ID() ID { return h.s.id }

// Runner returns the run client.
func (h *Handle) Runner() *runner.Client { return h.s.run }

// VM returns the VM service client, or nil before the debug port is known
// or if connecting failed.
func (h *Handle) VM() *vmservice.Client { return h.s.vmClient() }

// Extensions returns the framework extension facade, or nil when VM returns
// nil.
func (h *Handle) Extensions() *vmservice.Extensions {
	vm := h.s.vmClient()
	if vm == nil {
		return nil
	}
	return vm.Extensions()
}

// Info returns a status snapshot.
func (h *Handle) Info() Info { return h.s.info() }

// Logs returns the retained log lines, oldest first.
func (h *Handle) Logs() []LogLine { return h.s.logs.Lines() }
