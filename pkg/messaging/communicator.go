package messaging

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ava-labs/algol/pkg/metrics"
)

// Communicator publishes and subscribes on behalf of one identity. Messages
// from every subscription are handed to the same Handler.
//
// Communicators are not owned by the Broker. Close releases the
// communicator's subscriptions; Broker.Cleanup releases all of them.
type Communicator struct {
	broker       *Broker
	identity     string
	handler      Handler
	sent         SentHandler
	directedOnly bool
	log          *zap.SugaredLogger

	mu   sync.Mutex
	subs map[subKey]*subscription
}

type CommunicatorOption func(*Communicator)

// WithDirectedOnly skips messages whose ReplyTo names a different identity.
// Messages without a ReplyTo are always delivered.
func WithDirectedOnly() CommunicatorOption {
	return func(c *Communicator) { c.directedOnly = true }
}

// WithSentHandler registers a callback invoked after every publish. It takes
// precedence over a Handler that implements SentHandler.
func WithSentHandler(h SentHandler) CommunicatorOption {
	return func(c *Communicator) { c.sent = h }
}

// NewCommunicator creates a communicator for identity. An empty identity is
// replaced with a random one and a nil handler discards messages.
func NewCommunicator(b *Broker, identity string, h Handler, opts ...CommunicatorOption) (*Communicator, error) {
	if b == nil {
		return nil, errors.New("invalid broker: must not be nil")
	}
	if identity == "" {
		identity = uuid.NewString()
	}
	if h == nil {
		h = NopHandler{}
	}

	c := &Communicator{
		broker:   b,
		identity: identity,
		handler:  h,
		log:      b.log.With("identity", identity),
		subs:     make(map[subKey]*subscription),
	}
	if sh, ok := h.(SentHandler); ok {
		c.sent = sh
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Communicator) Identity() string { return c.identity }

// Publish sends msg to queue through exchange and returns its sequence id.
//
// AppID, Timestamp, MessageID and UserID are filled in when the caller left
// them empty.
func (c *Communicator) Publish(msg Message, exchange, queue string) (uint64, error) {
	app, err := c.broker.App()
	if err != nil {
		c.notifySent(msg, err)
		return 0, err
	}

	p := &msg.props
	if p.AppID == "" {
		p.AppID = app.FQN
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	if p.MessageID == "" {
		p.MessageID = uuid.NewString()
	}
	if p.UserID == "" {
		p.UserID = c.identity
	}

	seq, err := c.broker.Publish(msg, exchange, queue)
	if err == nil {
		msg.seq, msg.exchange, msg.queue = seq, exchange, queue
	}
	c.notifySent(msg, err)
	return seq, err
}

func (c *Communicator) notifySent(msg Message, err error) {
	if c.sent == nil {
		return
	}
	c.sent.OnMessageSent(msg, resultOf(err))
}

// Subscribe starts delivering messages from queue to the handler. It returns
// as soon as the worker is attached. Subscribing twice to the same queue is a
// no-op.
//
// Only one subscription may consume a queue at a time; a queue consumed
// through another communicator yields ErrQueueBusy.
func (c *Communicator) Subscribe(exchange, queue string) error {
	b := c.broker
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := subKey{exchange: exchange, queue: queue}
	if s, ok := c.subs[key]; ok && s.active() {
		return nil
	}

	q, err := b.resolveQueueLocked(exchange, queue, !b.cfg.StrictRouting)
	if err != nil {
		return err
	}

	if !b.workerSem.TryAcquire(1) {
		b.metrics.IncError(metrics.ErrTypeAttach)
		return fmt.Errorf("%w: %d workers running", ErrWorkerAttach, b.cfg.MaxSubscriptions)
	}

	s := newSubscription(c, q)
	prev, err := q.attach(s)
	if err != nil {
		s.cancel()
		b.workerSem.Release(1)
		return err
	}
	s.prev = prev

	c.subs[key] = s
	b.addSub(s)
	b.workers.Add(1)
	b.metrics.IncActiveSubscriptions()
	go s.run()

	s.log.Infow("subscribed")
	return nil
}

// Unsubscribe detaches from queue. Messages published afterwards stay in the
// queue for the next subscriber. It does not wait for the worker to exit, so
// it is safe to call from a handler.
func (c *Communicator) Unsubscribe(exchange, queue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.subs[subKey{exchange: exchange, queue: queue}]
	if !ok || !s.active() {
		return fmt.Errorf("%w: %s/%s", ErrNotSubscribed, exchange, queue)
	}
	s.stop()
	s.log.Infow("unsubscribed")
	return nil
}

// IsSubscribed reports whether an active subscription to queue exists.
func (c *Communicator) IsSubscribed(exchange, queue string) bool {
	st := c.State(exchange, queue)
	return st == Subscribing || st == Listening
}

// State returns the state of the subscription to queue.
func (c *Communicator) State(exchange, queue string) SubscriptionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.subs[subKey{exchange: exchange, queue: queue}]
	if !ok {
		return Unsubscribed
	}
	return s.State()
}

// Close stops every subscription of the communicator and waits for their
// workers to exit or for ctx to be done. Calling Close from this
// communicator's own Handler blocks until ctx is done; use Unsubscribe there.
func (c *Communicator) Close(ctx context.Context) error {
	c.mu.Lock()
	subs := slices.Collect(maps.Values(c.subs))
	c.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	for _, s := range subs {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Communicator) removeSub(s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[s.key] == s {
		delete(c.subs, s.key)
	}
}
