// Package subscribe implements the filtered fan-out of appended deltas to
// subscriber callbacks: one dispatch goroutine per subscription draining a
// bounded pending queue in FIFO order, with a configurable backpressure
// policy for when the queue fills.
package subscribe

import (
	"log/slog"
	"sync"

	"hyperdelta.dev/engine/delta"
	"hyperdelta.dev/engine/store"
)

// Policy is the backpressure policy applied when a subscription's pending
// queue is full.
type Policy string

const (
	DropNewest    Policy = "drop-newest"
	DropOldest    Policy = "drop-oldest"
	BlockProducer Policy = "block-producer"
)

// Callback receives each delta matching a subscription's filter. A panic
// inside the callback is caught and logged; it never cancels the
// subscription.
type Callback func(*delta.Delta)

// Bus fans appended deltas out to filtered subscribers.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	subs      map[uint64]*subscription
	queueSize int
	policy    Policy
	logger    *slog.Logger
}

func New(queueSize int, policy Policy, logger *slog.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if policy == "" {
		policy = DropNewest
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[uint64]*subscription), queueSize: queueSize, policy: policy, logger: logger}
}

// Unsubscribe stops future deliveries to a subscription and drops any
// pending ones; a callback already in flight runs to completion.
type Unsubscribe func()

// Subscribe registers filter/callback and starts its dispatch goroutine.
func (b *Bus) Subscribe(filter store.Filter, cb Callback) Unsubscribe {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := newSubscription(filter, cb, b.queueSize, b.policy, b.logger)
	b.subs[id] = sub
	b.mu.Unlock()

	go sub.run()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.stop()
	}
}

// Publish evaluates every subscription's filter against d and enqueues a
// delivery for each match. It may block the caller if a matching
// subscription uses the block-producer backpressure policy and its queue
// is full; the other two policies never block.
func (b *Bus) Publish(d *delta.Delta) {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.filter.Matches(d) {
			s.enqueue(d)
		}
	}
}

// Count reports the number of active subscriptions.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
