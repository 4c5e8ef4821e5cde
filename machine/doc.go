// Package machine implements the flutter tool's machine protocol, spoken by
// both `flutter daemon` and `flutter run --machine`.
//
// Every protocol line is a one-element JSON array wrapping the envelope:
//
//	[{"id":1,"method":"daemon.version"}]
//	[{"id":1,"result":"0.6.1"}]
//	[{"event":"device.added","params":{"id":"macos","name":"macOS"}}]
//
// Anything else on stdout is plain tool output (build logs, progress text)
// and is not protocol traffic.
package machine
