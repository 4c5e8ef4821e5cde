package vmservice

import "encoding/json"

// Stream ids accepted by streamListen.
const (
	StreamVM           = "VM"
	StreamIsolate      = "Isolate"
	StreamDebug        = "Debug"
	StreamGC           = "GC"
	StreamExtension    = "Extension"
	StreamTimeline     = "Timeline"
	StreamLogging      = "Logging"
	StreamService      = "Service"
	StreamHeapSnapshot = "HeapSnapshot"
	StreamStdout       = "Stdout"
	StreamStderr       = "Stderr"
)

// Exception pause modes.
const (
	PauseModeNone      = "None"
	PauseModeUnhandled = "Unhandled"
	PauseModeAll       = "All"
)

// Step options for Resume.
const (
	StepInto         = "Into"
	StepOver         = "Over"
	StepOverAsyncSus = "OverAsyncSuspension"
	StepOut          = "Out"
	StepRewind       = "Rewind"
)

// Version is the protocol version.
type Version struct {
	Type  string `json:"type,omitempty"`
	Major int    `json:"major"`
	Minor int    `json:"minor"`
}

// IsolateRef is a reference to an isolate.
type IsolateRef struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Number          string `json:"number,omitempty"`
	IsSystemIsolate bool   `json:"isSystemIsolate,omitempty"`
}

// VM describes the Dart VM.
type VM struct {
	Isolates         []IsolateRef `json:"isolates"`
	Name             string       `json:"name"`
	HostCPU          string       `json:"hostCPU,omitempty"`
	OperatingSystem  string       `json:"operatingSystem,omitempty"`
	TargetCPU        string       `json:"targetCPU,omitempty"`
	Version          string       `json:"version"`
	ArchitectureBits int          `json:"architectureBits,omitempty"`
	PID              int          `json:"pid,omitempty"`
	StartTime        int64        `json:"startTime,omitempty"`
}

// LibraryRef is a reference to a library.
type LibraryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Isolate describes one isolate.
type Isolate struct {
	PauseEvent         *Event       `json:"pauseEvent,omitempty"`
	RootLib            *LibraryRef  `json:"rootLib,omitempty"`
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Number             string       `json:"number,omitempty"`
	ExceptionPauseMode string       `json:"exceptionPauseMode,omitempty"`
	Libraries          []LibraryRef `json:"libraries,omitempty"`
	Breakpoints        []Breakpoint `json:"breakpoints,omitempty"`
	ExtensionRPCs      []string     `json:"extensionRPCs,omitempty"`
	StartTime          int64        `json:"startTime,omitempty"`
	LivePorts          int          `json:"livePorts,omitempty"`
	Runnable           bool         `json:"runnable"`
	PauseOnExit        bool         `json:"pauseOnExit,omitempty"`
}

// Breakpoint is a breakpoint.
type Breakpoint struct {
	Location         json.RawMessage `json:"location,omitempty"`
	ID               string          `json:"id"`
	BreakpointNumber int             `json:"breakpointNumber"`
	Enabled          bool            `json:"enabled"`
	Resolved         bool            `json:"resolved"`
}

// Event is a VM service event delivered through streamNotify.
type Event struct {
	Isolate       *IsolateRef     `json:"isolate,omitempty"`
	Breakpoint    *Breakpoint     `json:"breakpoint,omitempty"`
	ExtensionData json.RawMessage `json:"extensionData,omitempty"`
	LogRecord     json.RawMessage `json:"logRecord,omitempty"`
	TopFrame      json.RawMessage `json:"topFrame,omitempty"`
	Kind          string          `json:"kind"`
	ExtensionKind string          `json:"extensionKind,omitempty"`
	Bytes         string          `json:"bytes,omitempty"`
	Timestamp     int64           `json:"timestamp,omitempty"`
}

// StreamEvent is the params of a streamNotify notification.
type StreamEvent struct {
	StreamID string `json:"streamId"`
	Event    Event  `json:"event"`
}

// Frame is one stack frame.
type Frame struct {
	Code     json.RawMessage `json:"code,omitempty"`
	Function json.RawMessage `json:"function,omitempty"`
	Location json.RawMessage `json:"location,omitempty"`
	Vars     json.RawMessage `json:"vars,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	Index    int             `json:"index"`
}

// Stack is the result of getStack.
type Stack struct {
	Frames            []Frame         `json:"frames"`
	AsyncCausalFrames []Frame         `json:"asyncCausalFrames,omitempty"`
	Messages          json.RawMessage `json:"messages,omitempty"`
	Truncated         bool            `json:"truncated,omitempty"`
}

// ScriptRef is a reference to a script.
type ScriptRef struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// ScriptList is the result of getScripts.
type ScriptList struct {
	Scripts []ScriptRef `json:"scripts"`
}

// MemoryUsage is the result of getMemoryUsage.
type MemoryUsage struct {
	ExternalUsage int64 `json:"externalUsage"`
	HeapCapacity  int64 `json:"heapCapacity"`
	HeapUsage     int64 `json:"heapUsage"`
}

// ClassHeapStats is one row of an allocation profile.
type ClassHeapStats struct {
	Class            json.RawMessage `json:"class"`
	AccumulatedSize  int64           `json:"accumulatedSize"`
	BytesCurrent     int64           `json:"bytesCurrent"`
	InstancesAccum   int64           `json:"instancesAccumulated"`
	InstancesCurrent int64           `json:"instancesCurrent"`
}

// AllocationProfile is the result of getAllocationProfile.
type AllocationProfile struct {
	Members                  []ClassHeapStats `json:"members"`
	MemoryUsage              MemoryUsage      `json:"memoryUsage"`
	DateLastAccumulatorReset string           `json:"dateLastAccumulatorReset,omitempty"`
	DateLastServiceGC        string           `json:"dateLastServiceGC,omitempty"`
}

// InstanceSet is the result of getInstances.
type InstanceSet struct {
	Instances  []json.RawMessage `json:"instances"`
	TotalCount int               `json:"totalCount"`
}

// Flag is a VM flag.
type Flag struct {
	Name          string `json:"name"`
	Comment       string `json:"comment,omitempty"`
	ValueAsString string `json:"valueAsString,omitempty"`
	Modified      bool   `json:"modified"`
}

// FlagList is the result of getFlagList.
type FlagList struct {
	Flags []Flag `json:"flags"`
}

// ReloadReport is the result of reloadSources.
type ReloadReport struct {
	Details json.RawMessage `json:"details,omitempty"`
	Success bool            `json:"success"`
}

// Success is the result of calls that return nothing.
type Success struct {
	Type string `json:"type"`
}
