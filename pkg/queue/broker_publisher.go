package queue

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/algol/pkg/messaging"
)

const queueFullRetryDelay = 10 * time.Millisecond

var ErrPublisherClosed = errors.New("publisher closed")

// BrokerPublisher is a QueuePublisher backed by a messaging.Communicator.
//
// Publish returns once the message is enqueued. When the destination queue is
// full it retries until there is room or ctx is done.
type BrokerPublisher struct {
	comm       *messaging.Communicator
	log        *zap.SugaredLogger
	retryDelay time.Duration
	closedCh   chan struct{}
	once       sync.Once
}

var _ QueuePublisher = (*BrokerPublisher)(nil)

// NewBrokerPublisher creates a QueuePublisher that publishes through comm.
// The communicator is not owned by the publisher.
func NewBrokerPublisher(comm *messaging.Communicator, log *zap.SugaredLogger) (*BrokerPublisher, error) {
	if comm == nil {
		return nil, errors.New("invalid communicator: must not be nil")
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	return &BrokerPublisher{
		comm:       comm,
		log:        log,
		retryDelay: queueFullRetryDelay,
		closedCh:   make(chan struct{}),
	}, nil
}

// Publish enqueues msg into every queue bound to msg.RoutingKey.
//
// Publish returns an error in the following cases:
//   - the publisher is closed,
//   - the broker is not initialized,
//   - the message has no payload or no destination,
//   - the exchange or queue is unknown and strict routing is enabled.
//
// If the context is done while waiting for room in a full queue, Publish
// returns ctx.Err() and the message is not enqueued.
func (p *BrokerPublisher) Publish(ctx context.Context, msg Msg) error {
	select {
	case <-p.closedCh:
		return ErrPublisherClosed
	default:
	}

	m := messaging.NewMessage(msg.Value, toOptions(msg)...)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		seq, err := p.comm.Publish(m, msg.Exchange, msg.RoutingKey)
		if err == nil {
			p.log.Debugw("published", "exchange", msg.Exchange, "routingKey", msg.RoutingKey, "seq", seq)
			return nil
		}

		switch {
		case errors.Is(err, messaging.ErrQueueFull):
			p.log.Debugw("queue full, retrying", "exchange", msg.Exchange, "routingKey", msg.RoutingKey)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.closedCh:
				return ErrPublisherClosed
			case <-time.After(p.retryDelay):
			}
		case errors.Is(err, messaging.ErrNotInitialized):
			return fmt.Errorf("broker not available: %w", err)
		case errors.Is(err, messaging.ErrInvalidMessage), errors.Is(err, messaging.ErrEmptyName):
			return fmt.Errorf("invalid message: %w", err)
		case errors.Is(err, messaging.ErrNoSuchExchange), errors.Is(err, messaging.ErrNoSuchQueue):
			return fmt.Errorf("unknown exchange or queue: %w", err)
		default:
			return fmt.Errorf("failed to publish: %w", err)
		}
	}
}

// Close stops the publisher. Publish calls waiting on a full queue return
// ErrPublisherClosed. Calling Close multiple times does nothing.
func (p *BrokerPublisher) Close(context.Context) {
	p.once.Do(func() {
		close(p.closedCh)
		p.log.Info("broker publisher closed")
	})
}

func toOptions(msg Msg) []messaging.MessageOption {
	opts := make([]messaging.MessageOption, 0, len(msg.Headers)+1)
	if len(msg.Key) > 0 {
		opts = append(opts, messaging.WithCorrelationID(string(msg.Key)))
	}
	// Map order is random; sort so header order is stable.
	for _, k := range slices.Sorted(maps.Keys(msg.Headers)) {
		opts = append(opts, messaging.WithHeader(k, msg.Headers[k]))
	}
	return opts
}
