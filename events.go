package cyw43439

import (
	"sync"

	"github.com/soypat/cyw43439/whd"
	"golang.org/x/exp/slices"
)

// EventStatus is published on the EventQueue for every AUTH/JOIN
// firmware event, per spec.md §4.9.
type EventStatus struct {
	Status    uint32
	EventType whd.EventType
}

// EventQueue is a pub/sub broadcaster of decoded firmware events with
// immediate delivery and drop-oldest overflow (spec.md §4.9): the
// publisher never blocks, and a slow subscriber loses its oldest
// unread event rather than stalling the runner.
type EventQueue struct {
	mu   sync.Mutex
	subs []*eventSub
}

type eventSub struct {
	ch chan EventStatus
}

const eventSubCapacity = 4

// Subscribe registers a new listener. Call Unsubscribe when done.
func (q *EventQueue) Subscribe() *eventSub {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := &eventSub{ch: make(chan EventStatus, eventSubCapacity)}
	q.subs = append(q.subs, s)
	return s
}

// Unsubscribe removes a listener previously returned by Subscribe.
func (q *EventQueue) Unsubscribe(s *eventSub) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := slices.Index(q.subs, s); i >= 0 {
		q.subs = slices.Delete(q.subs, i, i+1)
	}
}

// Recv blocks until the next event arrives on this subscription.
func (s *eventSub) Recv() EventStatus { return <-s.ch }

// publishImmediate delivers ev to every subscriber without blocking;
// a subscriber whose buffer is full has its oldest event dropped to
// make room, matching spec.md §4.9's drop-oldest semantics.
func (q *EventQueue) publishImmediate(ev EventStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.subs {
		select {
		case s.ch <- ev:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
}
