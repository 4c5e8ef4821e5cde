package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by *NotFoundError.
	ErrNotFound = errors.New("session not found")

	// ErrClosed is returned by Create after the manager was closed.
	ErrClosed = errors.New("session manager closed")
)

// NotFoundError reports an unknown session id.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrNotFound, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
