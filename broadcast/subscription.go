package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/squadracorsepolito/canweb/can"
	"golang.org/x/sys/cpu"
)

// SubscriberStats holds the delivery counters of a subscription.
type SubscriberStats struct {
	// Sent is the number of messages enqueued for the subscriber.
	Sent uint64
	// Dropped is the number of queued messages evicted because the queue was full.
	Dropped uint64
}

// Subscription is the receiving end of a [Broadcaster].
type Subscription struct {
	id string
	bc *Broadcaster

	mux    sync.Mutex
	ch     chan *can.Message
	closed bool

	sent atomic.Uint64

	// used to avoid false sharing between the publisher and the readers of the stats
	_ cpu.CacheLinePad

	dropped atomic.Uint64
}

func newSubscription(id string, bc *Broadcaster, queueSize int) *Subscription {
	return &Subscription{
		id: id,
		bc: bc,

		ch: make(chan *can.Message, queueSize),
	}
}

// ID returns the unique identifier of the subscription.
func (s *Subscription) ID() string {
	return s.id
}

// C returns the channel messages are delivered on.
// It is closed when the subscription is closed.
func (s *Subscription) C() <-chan *can.Message {
	return s.ch
}

// Stats returns the delivery counters of the subscription.
func (s *Subscription) Stats() SubscriberStats {
	return SubscriberStats{
		Sent:    s.sent.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Close removes the subscription from its broadcaster.
func (s *Subscription) Close() {
	s.bc.Unsubscribe(s)
}

// push enqueues msg, evicting the oldest queued message when the queue is full.
// It reports whether a message was dropped.
func (s *Subscription) push(msg *can.Message) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.closed {
		return false
	}

	dropped := false
	for {
		select {
		case s.ch <- msg:
			s.sent.Add(1)
			return dropped
		default:
		}

		// The queue is full, make room by evicting the oldest message.
		// The reader may have made room in the meantime, so the receive is non-blocking.
		select {
		case <-s.ch:
			s.dropped.Add(1)
			dropped = true
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	// Discard what is still queued
	for {
		select {
		case <-s.ch:
			continue
		default:
		}
		break
	}

	close(s.ch)
}
