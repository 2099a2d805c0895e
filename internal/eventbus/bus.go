// Package eventbus provides an in-memory publish/subscribe hub.
//
// A Bus owns its membership set inside a single goroutine. Publish delivers an
// event once to every subscriber that is a member when the publish message is
// processed. There is no buffering per subscriber, no replay for late joiners
// and no delivery confirmation: delivery is at-most-once and best-effort.
// Subscribers that stop consuming are expected to unsubscribe themselves; the
// bus never probes liveness.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"jobkernel/internal/apperrors"
)

// Subscriber receives events from a Bus. Deliver is called from the bus
// goroutine and must not block. Implementations must be comparable
// (typically pointers) because membership is a set keyed by the subscriber.
type Subscriber[E any] interface {
	Deliver(event E)
}

// MetricsRecorder is an optional interface for recording bus metrics.
type MetricsRecorder interface {
	RecordBusPublished(ctx context.Context, bus string, deliveries int)
	RecordBusSubscribers(ctx context.Context, bus string, members int64)
}

type opKind int

const (
	opSubscribe opKind = iota
	opUnsubscribe
	opPublish
	opLen
)

type message[E any] struct {
	op    opKind
	sub   Subscriber[E]
	event E
	ack   chan int
}

// Bus is an actor that fans events out to its current subscribers.
type Bus[E any] struct {
	name    string
	inbox   chan message[E]
	quit    chan struct{}
	done    chan struct{}
	logger  *slog.Logger
	metrics MetricsRecorder

	closeOnce sync.Once
}

// New starts a bus. name identifies the bus in logs and metrics.
func New[E any](name string, cfg Config, metrics MetricsRecorder) *Bus[E] {
	cfg = cfg.withDefaults()

	b := &Bus[E]{
		name:    name,
		inbox:   make(chan message[E], cfg.InboxSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  slog.With("component", "eventbus", "bus", name),
		metrics: metrics,
	}
	go b.run()
	return b
}

// Subscribe adds sub to the membership set. Subscribing twice is a no-op.
// It returns once the bus has recorded the membership, so any event published
// afterwards reaches sub.
func (b *Bus[E]) Subscribe(sub Subscriber[E]) error {
	if sub == nil {
		return apperrors.Validation("subscriber", "subscriber is required")
	}
	if !hashable(sub) {
		return apperrors.Validation("subscriber", fmt.Sprintf("subscriber type %T is not comparable", sub))
	}
	_, err := b.request(message[E]{op: opSubscribe, sub: sub})
	return err
}

// Unsubscribe removes sub from the membership set. Removing a subscriber that
// is not a member is a no-op. No event is delivered to sub after it returns.
func (b *Bus[E]) Unsubscribe(sub Subscriber[E]) error {
	if sub == nil || !hashable(sub) {
		return nil
	}
	_, err := b.request(message[E]{op: opUnsubscribe, sub: sub})
	return err
}

// Publish queues event for delivery to the current members. It does not wait
// for delivery.
func (b *Bus[E]) Publish(event E) error {
	select {
	case <-b.quit:
		return apperrors.Unavailable("event bus " + b.name)
	default:
	}

	select {
	case b.inbox <- message[E]{op: opPublish, event: event}:
		return nil
	case <-b.quit:
		return apperrors.Unavailable("event bus " + b.name)
	}
}

// Len returns the number of current members.
func (b *Bus[E]) Len() (int, error) {
	return b.request(message[E]{op: opLen})
}

// Close stops the bus. Publishes queued before Close may be discarded.
func (b *Bus[E]) Close() {
	b.closeOnce.Do(func() {
		close(b.quit)
	})
	<-b.done
}

func (b *Bus[E]) request(msg message[E]) (int, error) {
	msg.ack = make(chan int, 1)

	select {
	case b.inbox <- msg:
	case <-b.quit:
		return 0, apperrors.Unavailable("event bus " + b.name)
	}

	select {
	case n := <-msg.ack:
		return n, nil
	case <-b.done:
		return 0, apperrors.Unavailable("event bus " + b.name)
	}
}

func (b *Bus[E]) run() {
	defer close(b.done)

	members := make(map[Subscriber[E]]struct{})
	for {
		select {
		case <-b.quit:
			b.logger.Debug("Event bus stopped", "members", len(members))
			return
		case msg := <-b.inbox:
			switch msg.op {
			case opSubscribe:
				if _, ok := members[msg.sub]; !ok {
					members[msg.sub] = struct{}{}
					b.recordMembers(len(members))
				}
				msg.ack <- len(members)
			case opUnsubscribe:
				if _, ok := members[msg.sub]; ok {
					delete(members, msg.sub)
					b.recordMembers(len(members))
				}
				msg.ack <- len(members)
			case opLen:
				msg.ack <- len(members)
			case opPublish:
				for sub := range members {
					b.deliver(sub, msg.event)
				}
				if b.metrics != nil {
					b.metrics.RecordBusPublished(context.Background(), b.name, len(members))
				}
			}
		}
	}
}

// deliver isolates the bus from a misbehaving subscriber.
func (b *Bus[E]) deliver(sub Subscriber[E], event E) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("Subscriber panicked during delivery", "subscriber", fmt.Sprintf("%T", sub), "panic", r)
		}
	}()
	sub.Deliver(event)
}

// hashable reports whether sub can be a membership key. A value holding an
// incomparable dynamic type at any depth panics on insert.
func hashable[E any](sub Subscriber[E]) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	set := make(map[Subscriber[E]]struct{}, 1)
	set[sub] = struct{}{}
	return len(set) == 1
}

func (b *Bus[E]) recordMembers(n int) {
	if b.metrics != nil {
		b.metrics.RecordBusSubscribers(context.Background(), b.name, int64(n))
	}
}
