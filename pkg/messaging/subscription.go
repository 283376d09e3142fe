package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/algol/pkg/metrics"
)

// SubscriptionState is the lifecycle state of a subscription worker.
type SubscriptionState int32

const (
	Unsubscribed SubscriptionState = iota
	Subscribing
	Listening
	Draining
)

func (s SubscriptionState) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribing:
		return "subscribing"
	case Listening:
		return "listening"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("SubscriptionState(%d)", int32(s))
	}
}

type subKey struct {
	exchange string
	queue    string
}

// subscription is a single consumer loop attached to one queue.
type subscription struct {
	key     subKey
	broker  *Broker
	comm    *Communicator
	queue   *Queue
	handler Handler
	log     *zap.SugaredLogger

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	// prev is the queue's previous consumer. Delivery starts once it is done.
	prev     *subscription
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscription(c *Communicator, q *Queue) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		key:     subKey{exchange: q.exchange.name, queue: q.name},
		broker:  c.broker,
		comm:    c,
		queue:   q,
		handler: c.handler,
		log:     q.exchange.log.With("queue", q.name, "identity", c.identity),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.state.Store(int32(Subscribing))
	return s
}

func (s *subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

func (s *subscription) active() bool {
	st := s.State()
	return st == Subscribing || st == Listening
}

// stop detaches the subscription from its queue and cancels the worker. It
// does not wait; the worker finishes the message in hand, if any, and exits.
func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		for st := s.state.Load(); st == int32(Subscribing) || st == int32(Listening); st = s.state.Load() {
			if s.state.CompareAndSwap(st, int32(Draining)) {
				break
			}
		}
		s.queue.detach(s)
		s.cancel()
	})
}

func (s *subscription) run() {
	defer s.finish()

	if s.prev != nil {
		select {
		case <-s.prev.done:
		case <-s.ctx.Done():
			return
		case <-s.queue.gone:
			return
		}
	}
	if !s.state.CompareAndSwap(int32(Subscribing), int32(Listening)) {
		return
	}
	s.log.Debugw("subscription listening")

	ticker := time.NewTicker(*s.broker.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if msg, ok := s.queue.claim(s); ok {
			s.dispatch(msg)
			continue
		}
		select {
		case <-s.ctx.Done():
			return
		case <-s.queue.gone:
			return
		case <-s.queue.ready:
		case <-ticker.C:
		}
	}
}

func (s *subscription) finish() {
	s.log.Debugw("subscription stopped")
	s.queue.detach(s)
	s.cancel()
	s.broker.workerSem.Release(1)
	s.broker.removeSub(s)
	s.broker.metrics.DecActiveSubscriptions()

	s.state.Store(int32(Unsubscribed))
	s.comm.removeSub(s)
	close(s.done)
	s.broker.workers.Done()
}

func (s *subscription) dispatch(msg Message) {
	m := s.broker.metrics

	if s.comm.directedOnly {
		if to := msg.props.ReplyTo; to != "" && to != s.comm.identity {
			m.RecordSkipped(msg.exchange, msg.queue)
			s.log.Debugw("skipping message addressed to another recipient", "seq", msg.seq, "replyTo", to)
			return
		}
	}

	m.IncMessagesInFlight()
	defer m.DecMessagesInFlight()

	start := time.Now()
	err := s.invoke(msg)
	m.RecordDelivery(msg.exchange, msg.queue, err, time.Since(start).Seconds())

	switch {
	case err == nil:
	case errors.Is(err, ErrHandlerPanic):
		m.IncError(metrics.ErrTypePanic)
		s.log.Errorw("handler panicked", "seq", msg.seq, "error", err)
	default:
		m.IncError(metrics.ErrTypeHandler)
		s.log.Warnw("handler failed", "seq", msg.seq, "error", err)
	}
}

func (s *subscription) invoke(msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return s.handler.OnMessageReceived(s.ctx, msg)
}
