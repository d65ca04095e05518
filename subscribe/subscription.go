package subscribe

import (
	"log/slog"
	"sync"

	"hyperdelta.dev/engine/delta"
	"hyperdelta.dev/engine/store"
)

// subscription holds one filtered callback's pending deliveries. A plain
// channel cannot implement drop-oldest backpressure without racing a
// goroutine that may be mid-receive on the head element, so the pending
// queue is a mutex+cond-guarded slice instead.
type subscription struct {
	filter store.Filter
	cb     Callback
	policy Policy
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	buf      []*delta.Delta
	capacity int
	closed   bool
}

func newSubscription(filter store.Filter, cb Callback, capacity int, policy Policy, logger *slog.Logger) *subscription {
	s := &subscription{
		filter:   filter,
		cb:       cb,
		policy:   policy,
		logger:   logger,
		capacity: capacity,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// enqueue applies the subscription's backpressure policy and appends d to
// the pending queue. block-producer blocks the caller (Publish) until a
// slot frees or the subscription is closed.
func (s *subscription) enqueue(d *delta.Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.buf) >= s.capacity {
		switch s.policy {
		case DropOldest:
			s.buf = s.buf[1:]
		case BlockProducer:
			for len(s.buf) >= s.capacity && !s.closed {
				s.cond.Wait()
			}
			if s.closed {
				return
			}
		default: // DropNewest
			return
		}
	}
	s.buf = append(s.buf, d)
	s.cond.Signal()
}

// run is the subscription's dispatch goroutine: it drains buf in FIFO
// order, invoking cb for each delta with panic recovery so one bad
// callback never cancels the subscription. The head element stays in buf
// for the full duration of its delivery, popped only after cb returns, so
// the pending-queue capacity counts the in-flight item and not just the
// not-yet-started ones: a capacity-2 queue in front of a slow subscriber
// accepts exactly two deltas at a time, in-flight included.
func (s *subscription) run() {
	for {
		s.mu.Lock()
		for len(s.buf) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed && len(s.buf) == 0 {
			s.mu.Unlock()
			return
		}
		d := s.buf[0]
		s.mu.Unlock()

		s.deliver(d)

		s.mu.Lock()
		if len(s.buf) > 0 {
			s.buf = s.buf[1:]
		}
		s.cond.Signal() // wake a blocked producer, a slot just freed
		s.mu.Unlock()
	}
}

func (s *subscription) deliver(d *delta.Delta) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscription callback panicked", "delta_id", d.ID, "recover", r)
		}
	}()
	s.cb(d)
}

// stop marks the subscription closed, drops any pending deliveries, and
// wakes the dispatcher goroutine so it can exit.
func (s *subscription) stop() {
	s.mu.Lock()
	s.closed = true
	s.buf = nil
	s.mu.Unlock()
	s.cond.Broadcast()
}
