package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport failures. Typed errors below match them via
// errors.Is.
var (
	// ErrSpawn is matched by every *SpawnError.
	ErrSpawn = errors.New("spawn failed")

	// ErrConnect is matched by every *ConnectError.
	ErrConnect = errors.New("connect failed")

	// ErrWrite is matched by every *WriteError.
	ErrWrite = errors.New("write failed")

	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport closed")
)

// SpawnError reports that a tool process could not be started.
type SpawnError struct {
	Cause error
	Path  string
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Cause)
}

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

func (e *SpawnError) Unwrap() error { return e.Cause }

// ConnectError reports that a socket could not be opened.
type ConnectError struct {
	Cause error
	URI   string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.URI, e.Cause)
}

func (e *ConnectError) Is(target error) bool { return target == ErrConnect }

func (e *ConnectError) Unwrap() error { return e.Cause }

// WriteError reports that a line could not be written because the write half
// is gone.
type WriteError struct {
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed: %v", e.Cause)
}

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

func (e *WriteError) Unwrap() error { return e.Cause }
