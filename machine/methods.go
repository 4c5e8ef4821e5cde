package machine

// Methods understood by the flutter tool.
const (
	MethodDaemonVersion               = "daemon.version"
	MethodDaemonShutdown              = "daemon.shutdown"
	MethodDaemonGetSupportedPlatforms = "daemon.getSupportedPlatforms"
	MethodDeviceGetDevices            = "device.getDevices"
	MethodDeviceEnable                = "device.enable"
	MethodDeviceDisable               = "device.disable"
	MethodDeviceForward               = "device.forward"
	MethodDeviceUnforward             = "device.unforward"
	MethodEmulatorGetEmulators        = "emulator.getEmulators"
	MethodEmulatorLaunch              = "emulator.launch"
	MethodEmulatorCreate              = "emulator.create"
	MethodDevToolsServe               = "devtools.serve"
	MethodAppRestart                  = "app.restart"
	MethodAppDetach                   = "app.detach"
	MethodAppStop                     = "app.stop"
	MethodAppCallServiceExtension     = "app.callServiceExtension"
)

// Events emitted by the flutter tool.
const (
	EventDaemonConnected  = "daemon.connected"
	EventDaemonLog        = "daemon.log"
	EventDaemonLogMessage = "daemon.logMessage"
	EventDeviceAdded      = "device.added"
	EventDeviceRemoved    = "device.removed"
	EventAppStart         = "app.start"
	EventAppStarted       = "app.started"
	EventAppDebugPort     = "app.debugPort"
	EventAppProgress      = "app.progress"
	EventAppLog           = "app.log"
	EventAppStop          = "app.stop"
	EventAppWebLaunchURL  = "app.webLaunchUrl"
)
