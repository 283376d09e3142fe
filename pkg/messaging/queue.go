package messaging

import (
	"fmt"
	"sync"
)

// Queue is a FIFO buffer owned by one exchange. Messages published before
// anyone subscribes are kept until a consumer attaches.
type Queue struct {
	name     string
	exchange *Exchange
	capacity int // 0 means unbounded

	mu       sync.Mutex
	pending  []Message
	consumer *subscription
	// last is the most recent subscription attached to this queue. A new
	// consumer waits for it to finish so deliveries never overlap.
	last   *subscription
	closed bool

	ready chan struct{}
	// gone is closed when the queue is torn down.
	gone chan struct{}
}

func newQueue(name string, ex *Exchange, capacity int) *Queue {
	return &Queue{
		name:     name,
		exchange: ex,
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		gone:     make(chan struct{}),
	}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) Exchange() *Exchange { return q.exchange }

func (q *Queue) Capacity() int { return q.capacity }

// Len returns the number of messages waiting for delivery.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// HasConsumer reports whether a subscription is currently attached.
func (q *Queue) HasConsumer() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.consumer != nil
}

func (q *Queue) full() bool {
	if q.capacity == 0 {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) >= q.capacity
}

func (q *Queue) enqueue(msg Message) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchQueue, q.name)
	}
	if q.capacity > 0 && len(q.pending) >= q.capacity {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s (capacity %d)", ErrQueueFull, q.name, q.capacity)
	}
	q.pending = append(q.pending, msg)
	q.mu.Unlock()

	q.signal()
	return nil
}

// claim pops the oldest message, but only for the attached consumer.
func (q *Queue) claim(s *subscription) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consumer != s || len(q.pending) == 0 {
		return Message{}, false
	}
	msg := q.pending[0]
	q.pending[0] = Message{}
	q.pending = q.pending[1:]
	return msg, true
}

// attach makes s the sole consumer and returns the subscription it replaces.
func (q *Queue) attach(s *subscription) (*subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchQueue, q.name)
	}
	if q.consumer != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrQueueBusy, q.exchange.name, q.name)
	}
	prev := q.last
	q.consumer = s
	q.last = s
	return prev, nil
}

func (q *Queue) detach(s *subscription) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consumer == s {
		q.consumer = nil
	}
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.gone)
	q.pending = nil
	q.consumer = nil
}

func (q *Queue) stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Exchange:    q.exchange.name,
		Queue:       q.name,
		Depth:       len(q.pending),
		Capacity:    q.capacity,
		HasConsumer: q.consumer != nil,
	}
}

// QueueStats is a point-in-time view of a queue.
type QueueStats struct {
	Exchange    string
	Queue       string
	Depth       int
	Capacity    int
	HasConsumer bool
}
