package mux

import (
	"context"
	"sync"
)

// Stream is an independently cursored, lazily decoded view over a
// line Subscription. Lines the decode function rejects are skipped.
//
// Use either Next or C on a given stream, not both.
type Stream[T any] struct {
	sub      *Subscription[[]byte]
	decode   func(line []byte) (T, bool)
	stop     chan struct{}
	out      chan T
	pumpOnce sync.Once
	stopOnce sync.Once
}

func newStream[T any](sub *Subscription[[]byte], decode func([]byte) (T, bool)) *Stream[T] {
	return &Stream[T]{
		sub:    sub,
		decode: decode,
		stop:   make(chan struct{}),
	}
}

// Next blocks until the next value is available. It returns ErrClosed once
// the underlying line stream has ended, or ctx's error.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.stop:
			return zero, ErrClosed
		case line, ok := <-s.sub.C():
			if !ok {
				return zero, ErrClosed
			}
			if v, ok := s.decode(line); ok {
				return v, nil
			}
		}
	}
}

// C returns a channel of decoded values for use in select loops. The channel
// is closed when the line stream ends or the stream is closed.
func (s *Stream[T]) C() <-chan T {
	s.pumpOnce.Do(func() {
		s.out = make(chan T)
		go s.pump()
	})
	return s.out
}

func (s *Stream[T]) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.stop:
			return
		case line, ok := <-s.sub.C():
			if !ok {
				return
			}
			v, ok := s.decode(line)
			if !ok {
				continue
			}
			select {
			case s.out <- v:
			case <-s.stop:
				return
			}
		}
	}
}

// Dropped reports how many raw lines this stream lost by falling behind.
func (s *Stream[T]) Dropped() uint64 {
	return s.sub.Dropped()
}

// Close releases the subscription. Safe to call repeatedly.
func (s *Stream[T]) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.sub.Close()
	})
}
