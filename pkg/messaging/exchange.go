package messaging

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Exchange routes published messages to the queues bound under a routing key.
type Exchange struct {
	name   string
	broker *Broker
	log    *zap.SugaredLogger

	// mu guards the maps below and serializes publishing, so every queue of
	// this exchange receives messages in sequence order.
	mu       sync.Mutex
	queues   map[string]*Queue
	bindings map[string]map[string]*Queue // routing key -> queue name -> queue
	closed   bool
}

func newExchange(name string, b *Broker) *Exchange {
	return &Exchange{
		name:     name,
		broker:   b,
		log:      b.log.Named(name),
		queues:   make(map[string]*Queue),
		bindings: make(map[string]map[string]*Queue),
	}
}

func (e *Exchange) Name() string { return e.name }

// Queues returns the names of the queues owned by the exchange, sorted.
func (e *Exchange) Queues() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.queues))
}

// RoutingKeys returns the routing keys that have at least one queue bound, sorted.
func (e *Exchange) RoutingKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.bindings))
}

func (e *Exchange) resolveQueue(name string, create bool) (*Queue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveQueueLocked(name, create)
}

// resolveQueueLocked returns the named queue, creating it and binding it under
// its own name when create is set. e.mu must be held.
func (e *Exchange) resolveQueueLocked(name string, create bool) (*Queue, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchExchange, e.name)
	}
	if q, ok := e.queues[name]; ok {
		return q, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoSuchQueue, e.name, name)
	}
	q := newQueue(name, e, e.broker.cfg.QueueCapacity)
	e.queues[name] = q
	e.bindLocked(q, name)
	e.log.Debugw("queue declared", "queue", name, "capacity", q.capacity)
	return q, nil
}

func (e *Exchange) bind(q *Queue, key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindLocked(q, key)
}

func (e *Exchange) bindLocked(q *Queue, key string) {
	if e.closed {
		return
	}
	bound, ok := e.bindings[key]
	if !ok {
		bound = make(map[string]*Queue)
		e.bindings[key] = bound
	}
	bound[q.name] = q
}

// publish fans msg out to every queue bound under key and returns the sequence
// id it was stamped with. Either every target queue receives the message or none does.
func (e *Exchange) publish(msg Message, key string, create bool) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, fmt.Errorf("%w: %s", ErrNoSuchExchange, e.name)
	}

	targets := e.bindings[key]
	if len(targets) == 0 {
		if !create {
			return 0, fmt.Errorf("%w: no queue bound to %s/%s", ErrNoSuchQueue, e.name, key)
		}
		if _, err := e.resolveQueueLocked(key, true); err != nil {
			return 0, err
		}
		targets = e.bindings[key]
	}

	for _, q := range targets {
		if q.full() {
			return 0, fmt.Errorf("%w: %s/%s (capacity %d)", ErrQueueFull, e.name, q.name, q.capacity)
		}
	}

	seq := e.broker.seq.Add(1)
	for _, q := range targets {
		// Only publish grows a queue, so the capacity check above still holds.
		if err := q.enqueue(msg.routed(seq, e.name, q.name)); err != nil {
			return 0, err
		}
	}
	return seq, nil
}

func (e *Exchange) stats() []QueueStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]QueueStats, 0, len(e.queues))
	for _, name := range slices.Sorted(maps.Keys(e.queues)) {
		out = append(out, e.queues[name].stats())
	}
	return out
}

func (e *Exchange) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for _, q := range e.queues {
		q.close()
	}
	clear(e.queues)
	clear(e.bindings)
}
