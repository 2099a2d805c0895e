package eventbus

import "sync/atomic"

// ChannelSubscriber forwards events into a buffered channel. When the buffer
// is full the event is dropped and counted.
type ChannelSubscriber[E any] struct {
	ch      chan E
	dropped atomic.Int64
}

// NewChannelSubscriber creates a subscriber with the given buffer size.
func NewChannelSubscriber[E any](buffer int) *ChannelSubscriber[E] {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSubscriber[E]{ch: make(chan E, buffer)}
}

// Deliver implements Subscriber.
func (s *ChannelSubscriber[E]) Deliver(event E) {
	select {
	case s.ch <- event:
	default:
		s.dropped.Add(1)
	}
}

// C returns the channel events are delivered on.
func (s *ChannelSubscriber[E]) C() <-chan E {
	return s.ch
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *ChannelSubscriber[E]) Dropped() int64 {
	return s.dropped.Load()
}
