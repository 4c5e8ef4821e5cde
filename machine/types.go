package machine

import "encoding/json"

// Device is a connected device or a running emulator/simulator.
type Device struct {
	Capabilities        *Capabilities `json:"capabilities,omitempty"`
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Platform            string        `json:"platform,omitempty"`
	Category            string        `json:"category,omitempty"`
	PlatformType        string        `json:"platformType,omitempty"`
	EmulatorID          string        `json:"emulatorId,omitempty"`
	SDK                 string        `json:"sdk,omitempty"`
	ConnectionInterface string        `json:"connectionInterface,omitempty"`
	Emulator            bool          `json:"emulator,omitempty"`
	Ephemeral           bool          `json:"ephemeral,omitempty"`
	IsConnected         bool          `json:"isConnected,omitempty"`
}

// Capabilities describes what a device supports.
type Capabilities struct {
	HotReload         bool `json:"hotReload"`
	HotRestart        bool `json:"hotRestart"`
	Screenshot        bool `json:"screenshot"`
	FastStart         bool `json:"fastStart"`
	FlutterExit       bool `json:"flutterExit"`
	HardwareRendering bool `json:"hardwareRendering"`
	StartPaused       bool `json:"startPaused"`
}

// Emulator is an emulator or simulator that can be launched.
type Emulator struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category,omitempty"`
	PlatformType string `json:"platformType,omitempty"`
}

// CreateEmulatorResult is the result of emulator.create.
type CreateEmulatorResult struct {
	EmulatorName string `json:"emulatorName,omitempty"`
	Error        string `json:"error,omitempty"`
	Success      bool   `json:"success"`
}

// SupportedPlatforms is the result of daemon.getSupportedPlatforms.
type SupportedPlatforms struct {
	Platforms []string `json:"platforms"`
}

// ForwardResult is the result of device.forward.
type ForwardResult struct {
	HostPort int `json:"hostPort"`
}

// DevToolsServer is the result of devtools.serve.
type DevToolsServer struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RestartResult is the result of app.restart. Code 0 means success.
type RestartResult struct {
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// OK reports whether the restart succeeded.
func (r RestartResult) OK() bool { return r.Code == 0 }

// ExtensionResult is the raw result of a service extension call.
type ExtensionResult = json.RawMessage

// ConnectedEvent is the params of daemon.connected.
type ConnectedEvent struct {
	Version string `json:"version"`
	PID     int    `json:"pid"`
}

// LogEvent is the params of daemon.log.
type LogEvent struct {
	Log   string `json:"log"`
	Error bool   `json:"error,omitempty"`
}

// LogMessageEvent is the params of daemon.logMessage.
type LogMessageEvent struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	StackTrace string `json:"stackTrace,omitempty"`
}

// AppStartEvent is the params of app.start.
type AppStartEvent struct {
	AppID           string `json:"appId"`
	DeviceID        string `json:"deviceId"`
	Directory       string `json:"directory"`
	LaunchMode      string `json:"launchMode,omitempty"`
	Mode            string `json:"mode,omitempty"`
	SupportsRestart bool   `json:"supportsRestart"`
}

// AppStartedEvent is the params of app.started.
type AppStartedEvent struct {
	AppID string `json:"appId"`
}

// AppDebugPortEvent is the params of app.debugPort.
type AppDebugPortEvent struct {
	AppID   string `json:"appId"`
	WSURI   string `json:"wsUri"`
	BaseURI string `json:"baseUri,omitempty"`
	Port    int    `json:"port"`
}

// AppProgressEvent is the params of app.progress.
type AppProgressEvent struct {
	AppID      string `json:"appId"`
	ID         string `json:"id"`
	ProgressID string `json:"progressId,omitempty"`
	Message    string `json:"message,omitempty"`
	Finished   bool   `json:"finished,omitempty"`
}

// AppLogEvent is the params of app.log.
type AppLogEvent struct {
	AppID string `json:"appId"`
	Log   string `json:"log"`
	Error bool   `json:"error,omitempty"`
}

// AppStopEvent is the params of app.stop.
type AppStopEvent struct {
	AppID string `json:"appId"`
	Error string `json:"error,omitempty"`
}

// AppWebLaunchURLEvent is the params of app.webLaunchUrl.
type AppWebLaunchURLEvent struct {
	URL      string `json:"url"`
	Launched bool   `json:"launched"`
}
