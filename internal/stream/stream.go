// Package stream provides the two in-process fan-out streams the supervisor
// exposes to consumers: a replay-latest value stream for connection state and
// a conflated, no-replay stream for inbound messages.
//
// Both give every subscriber a single-slot buffer. Publishing never blocks: if
// a subscriber has not consumed its pending value, that value is replaced by
// the newer one.
package stream

import (
	"context"
	"sync"
)

// Stream is a broadcast of values of type T to any number of subscribers.
type Stream[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	replay bool
	latest T
	closed bool
}

// NewLatest returns a stream that always has a current value. New subscribers
// immediately receive the current value; no older history is kept.
func NewLatest[T any](initial T) *Stream[T] {
	return &Stream[T]{
		subs:   make(map[chan T]struct{}),
		replay: true,
		latest: initial,
	}
}

// NewConflated returns a stream without replay: subscribers only see values
// published after they subscribed.
func NewConflated[T any]() *Stream[T] {
	return &Stream[T]{
		subs: make(map[chan T]struct{}),
	}
}

// Publish delivers v to every subscriber, dropping a subscriber's older
// pending value if it has not been read yet.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.latest = v
	for ch := range s.subs {
		offer(ch, v)
	}
}

// Current returns the most recently published value (or the initial value).
func (s *Stream[T]) Current() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Subscribe registers a subscriber. The returned channel is closed when ctx
// is done or the stream is closed.
func (s *Stream[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	if s.replay {
		ch <- s.latest
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.unsubscribe(ch)
	})
	return ch
}

// Close closes every subscriber channel; later publishes are ignored.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscribers.
func (s *Stream[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Stream[T]) unsubscribe(ch chan T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[ch]; !ok {
		return
	}
	delete(s.subs, ch)
	close(ch)
}

// offer puts v into the single-slot channel, evicting a pending value.
// Callers hold s.mu, so there is exactly one writer per channel.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
