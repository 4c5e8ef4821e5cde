package mux

import (
	"sync"
	"sync/atomic"
)

// Fanout delivers every published value to every subscriber. A subscriber
// whose buffer is full loses its oldest value; Publish never blocks.
type Fanout[T any] struct {
	subscribers map[uint64]*Subscription[T]
	nextID      uint64
	mu          sync.RWMutex
	closed      bool
}

// NewFanout creates an open Fanout with no subscribers.
func NewFanout[T any]() *Fanout[T] {
	return &Fanout[T]{subscribers: make(map[uint64]*Subscription[T])}
}

// Subscribe registers a subscriber buffering up to bufSize values. If the
// Fanout is already closed the returned subscription is closed too.
func (f *Fanout[T]) Subscribe(bufSize int) *Subscription[T] {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &Subscription[T]{
		fanout: f,
		id:     f.nextID,
		ch:     make(chan T, max(bufSize, 1)),
	}
	f.nextID++

	if f.closed {
		close(sub.ch)
		sub.removed = true
		return sub
	}
	f.subscribers[sub.id] = sub
	return sub
}

// Publish hands v to every subscriber. Values are shared, not copied.
func (f *Fanout[T]) Publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subscribers {
		select {
		case sub.ch <- v:
			continue
		default:
		}
		// Full: drop the oldest value, then retry once.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- v:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Close closes every subscription. Later publishes are ignored and later
// subscriptions start closed. Safe to call repeatedly.
func (f *Fanout[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for id, sub := range f.subscribers {
		sub.removed = true
		close(sub.ch)
		delete(f.subscribers, id)
	}
}

func (f *Fanout[T]) unsubscribe(sub *Subscription[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sub.removed {
		return
	}
	sub.removed = true
	delete(f.subscribers, sub.id)
	close(sub.ch)
}

// Subscription is one subscriber's cursor over a Fanout.
type Subscription[T any] struct {
	fanout  *Fanout[T]
	ch      chan T
	id      uint64
	dropped atomic.Uint64
	removed bool // guarded by fanout.mu
}

// C returns the value channel. It is closed when the Fanout closes or the
// subscription is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Dropped reports how many values were evicted because this subscriber fell
// behind.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. Safe to call repeatedly and after the Fanout closed.
func (s *Subscription[T]) Close() {
	s.fanout.unsubscribe(s)
}
