package mux

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// IDSource hands out request ids. Implementations must be safe for concurrent
// use and never return an id that is still in flight.
type IDSource[ID comparable] interface {
	Next() ID
}

// Counter issues strictly increasing ids starting at 1. Wraparound is not
// handled; a uint64 counter does not get there.
type Counter struct {
	next atomic.Uint64
}

func (c *Counter) Next() uint64 {
	return c.next.Add(1)
}

// Tokens issues a random opaque token per call, for protocols where several
// facades share one id space.
type Tokens struct{}

func (Tokens) Next() string {
	return uuid.NewString()
}

// IDFunc adapts a function to IDSource.
type IDFunc[ID comparable] func() ID

func (f IDFunc[ID]) Next() ID { return f() }
