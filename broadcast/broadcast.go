// Package broadcast fans CAN messages out to many independent subscribers.
//
// Every subscription owns a bounded queue. Publishing never blocks:
// when a queue is full its oldest message is dropped to make room
// for the new one, so a slow consumer never slows down the producer
// nor causes messages to be dropped for other subscribers.
package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/squadracorsepolito/canweb/can"
	"github.com/squadracorsepolito/canweb/internal"
)

// DefaultQueueSize is the queue capacity of a subscription when none is configured.
const DefaultQueueSize = 100

// ErrClosed is returned by [Broadcaster.Subscribe] after [Broadcaster.Close].
var ErrClosed = errors.New("broadcaster is closed")

// Broadcaster distributes published messages to every active [Subscription].
type Broadcaster struct {
	tel *internal.Telemetry

	queueSize int

	mux    sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	// Telemetry metrics
	publishedMessages atomic.Int64
	droppedMessages   atomic.Int64
}

// New returns a [Broadcaster] whose subscriptions buffer at most queueSize messages.
func New(queueSize int) *Broadcaster {
	b := &Broadcaster{
		tel: internal.NewTelemetry("broadcast", "frames"),

		queueSize: max(queueSize, 1),

		subs: make(map[string]*Subscription),
	}

	b.initMetrics()

	return b
}

func (b *Broadcaster) initMetrics() {
	b.tel.NewCounter("published_messages", func() int64 { return b.publishedMessages.Load() })
	b.tel.NewCounter("dropped_messages", func() int64 { return b.droppedMessages.Load() })
	b.tel.NewUpDownCounter("subscribers", func() int64 { return int64(b.Count()) })
}

// Subscribe creates a new subscription.
// Only messages published after the call are delivered to it.
func (b *Broadcaster) Subscribe() (*Subscription, error) {
	b.mux.Lock()
	defer b.mux.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := newSubscription(uuid.NewString(), b, b.queueSize)
	b.subs[sub.id] = sub

	b.tel.LogDebug("subscribed", "subscription_id", sub.id, "subscribers", len(b.subs))

	return sub, nil
}

// Publish delivers msg to every active subscription.
// It never blocks and never fails.
func (b *Broadcaster) Publish(msg *can.Message) {
	b.mux.RLock()
	defer b.mux.RUnlock()

	if b.closed {
		return
	}

	b.publishedMessages.Add(1)

	for _, sub := range b.subs {
		if sub.push(msg) {
			b.droppedMessages.Add(1)
		}
	}
}

// Unsubscribe removes sub and discards the messages still queued for it.
// It is safe to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mux.Lock()
	_, ok := b.subs[sub.id]
	delete(b.subs, sub.id)
	remaining := len(b.subs)
	b.mux.Unlock()

	sub.close()

	if ok {
		stats := sub.Stats()
		b.tel.LogDebug("unsubscribed", "subscription_id", sub.id, "subscribers", remaining,
			"sent", stats.Sent, "dropped", stats.Dropped)
	}
}

// Count returns the number of active subscriptions.
func (b *Broadcaster) Count() int {
	b.mux.RLock()
	defer b.mux.RUnlock()

	return len(b.subs)
}

// Published returns the number of messages published so far.
func (b *Broadcaster) Published() int64 {
	return b.publishedMessages.Load()
}

// Close closes every subscription. Subsequent publishes are ignored
// and subsequent subscriptions fail with [ErrClosed].
func (b *Broadcaster) Close() {
	b.mux.Lock()
	if b.closed {
		b.mux.Unlock()
		return
	}

	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mux.Unlock()

	for _, sub := range subs {
		sub.close()
	}

	b.tel.LogInfo("closed", "closed_subscriptions", len(subs))
}
