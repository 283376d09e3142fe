package messaging

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/algol/pkg/metrics"
)

// Broker is an in-process registry of exchanges and their queues.
//
// A Broker is usable between Init and Cleanup. Every operation outside that
// window fails with ErrNotInitialized. Several brokers may coexist in one
// process; they share nothing.
type Broker struct {
	log     *zap.SugaredLogger
	cfg     Config
	metrics *metrics.Metrics

	// mu guards the lifecycle. Operations hold it for reading, Init and Cleanup for writing.
	mu          sync.RWMutex
	initialized bool
	app         App

	regMu     sync.Mutex
	exchanges map[string]*Exchange

	subsMu sync.Mutex
	subs   map[*subscription]struct{}

	workerSem *semaphore.Weighted
	workers   sync.WaitGroup
	seq       atomic.Uint64
}

// NewBroker creates a broker. The returned broker must be initialized with Init
// before use. m may be nil to disable metrics.
func NewBroker(log *zap.SugaredLogger, cfg Config, m *metrics.Metrics) (*Broker, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Broker{
		log:       log.Named("broker"),
		cfg:       cfg,
		metrics:   m,
		subs:      make(map[*subscription]struct{}),
		workerSem: semaphore.NewWeighted(cfg.MaxSubscriptions),
	}, nil
}

// Init starts the broker on behalf of the named application.
func (b *Broker) Init(appName string, major, minor, patch int, instanceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return ErrAlreadyInitialized
	}

	app, err := newApp(appName, major, minor, patch, instanceID)
	if err != nil {
		return err
	}

	b.app = app
	b.exchanges = make(map[string]*Exchange)
	b.initialized = true
	b.metrics.SetExchanges(0)

	b.log.Infow("broker initialized",
		"app", app.FQN,
		"strictRouting", b.cfg.StrictRouting,
		"queueCapacity", b.cfg.QueueCapacity,
		"maxSubscriptions", b.cfg.MaxSubscriptions,
	)
	return nil
}

// Cleanup stops every subscription, drops all exchanges and queues, and waits
// up to Config.DrainTimeout for subscription workers to exit. Pending messages
// are discarded. The broker may be initialized again afterwards.
//
// Cleanup must not be called from a Handler: the wait includes the calling
// worker, so it always runs into the drain timeout.
func (b *Broker) Cleanup() error {
	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return ErrNotInitialized
	}
	b.initialized = false

	b.subsMu.Lock()
	subs := slices.Collect(maps.Keys(b.subs))
	b.subsMu.Unlock()
	for _, s := range subs {
		s.stop()
	}

	b.regMu.Lock()
	for _, ex := range b.exchanges {
		ex.close()
	}
	b.exchanges = nil
	b.regMu.Unlock()

	fqn := b.app.FQN
	b.mu.Unlock()

	b.metrics.SetExchanges(0)
	b.metrics.ResetQueueDepths()

	// Workers may be inside a handler that calls back into the broker, so the
	// wait happens after the lock is released.
	if !b.waitWorkers(*b.cfg.DrainTimeout) {
		b.metrics.IncError(metrics.ErrTypeDrainStall)
		b.log.Warnw("subscription workers did not stop in time",
			"app", fqn,
			"timeout", b.cfg.DrainTimeout.String(),
		)
	}

	b.log.Infow("broker cleaned up", "app", fqn, "subscriptions", len(subs))
	return nil
}

// waitWorkers blocks until every worker exits or the timeout passes.
// A zero timeout returns immediately.
func (b *Broker) waitWorkers(timeout time.Duration) bool {
	if timeout == 0 {
		return true
	}
	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Initialized reports whether the broker is between Init and Cleanup.
func (b *Broker) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// App returns the application info recorded by Init.
func (b *Broker) App() (App, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return App{}, ErrNotInitialized
	}
	return b.app, nil
}

func (b *Broker) Config() Config { return b.cfg }

// ResolveExchange returns the named exchange, creating it when create is set.
func (b *Broker) ResolveExchange(name string, create bool) (*Exchange, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	return b.resolveExchangeLocked(name, create)
}

// DeclareExchange creates the named exchange if it does not exist yet.
func (b *Broker) DeclareExchange(name string) (*Exchange, error) {
	return b.ResolveExchange(name, true)
}

// ResolveQueue returns the named queue of an exchange. When create is set the
// exchange and the queue are created as needed, and a new queue is bound under
// its own name.
func (b *Broker) ResolveQueue(exchange, name string, create bool) (*Queue, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	return b.resolveQueueLocked(exchange, name, create)
}

// CloseExchange tears down one exchange while the rest of the broker keeps
// running. Its subscriptions stop, its pending messages are discarded and a
// later lenient publish or subscribe declares a fresh exchange of that name.
func (b *Broker) CloseExchange(name string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return ErrNotInitialized
	}

	b.regMu.Lock()
	ex, ok := b.exchanges[name]
	if !ok {
		b.regMu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchExchange, name)
	}
	delete(b.exchanges, name)
	b.metrics.SetExchanges(len(b.exchanges))
	b.regMu.Unlock()

	// Attach fails from here on; workers missing from the list below exit on q.gone.
	ex.close()

	b.subsMu.Lock()
	var subs []*subscription
	for s := range b.subs {
		if s.queue.exchange == ex {
			subs = append(subs, s)
		}
	}
	b.subsMu.Unlock()
	for _, s := range subs {
		s.stop()
	}

	b.metrics.DeleteQueueDepths(name)
	b.log.Infow("exchange closed", "exchange", name, "subscriptions", len(subs))
	return nil
}

// ExchangeOpen reports whether the named exchange exists on an initialized broker.
func (b *Broker) ExchangeOpen(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return false
	}
	b.regMu.Lock()
	defer b.regMu.Unlock()
	_, ok := b.exchanges[name]
	return ok
}

// Bind binds queue to exchange under the queue's own name. Binding twice is a no-op.
func (b *Broker) Bind(exchange, queue string) error {
	return b.BindKey(exchange, queue, queue)
}

// BindKey binds queue to exchange under routingKey. A queue may be bound under
// several keys, and several queues under the same key receive a copy each.
// Exchanges and queues are created unless strict routing is configured.
func (b *Broker) BindKey(exchange, queue, routingKey string) error {
	if routingKey == "" {
		return ErrEmptyName
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return ErrNotInitialized
	}

	q, err := b.resolveQueueLocked(exchange, queue, !b.cfg.StrictRouting)
	if err != nil {
		return err
	}
	q.exchange.bind(q, routingKey)
	return nil
}

// Publish routes msg through exchange to every queue bound under routingKey
// and returns the sequence id assigned to it.
func (b *Broker) Publish(msg Message, exchange, routingKey string) (uint64, error) {
	start := time.Now()
	seq, err := b.publish(msg, exchange, routingKey)
	b.metrics.RecordPublish(exchange, err, time.Since(start).Seconds())
	if errors.Is(err, ErrQueueFull) {
		b.metrics.IncError(metrics.ErrTypeQueueFull)
	}
	return seq, err
}

func (b *Broker) publish(msg Message, exchange, routingKey string) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return 0, ErrNotInitialized
	}
	if routingKey == "" {
		return 0, ErrEmptyName
	}
	if msg.Len() == 0 {
		return 0, ErrInvalidMessage
	}

	create := !b.cfg.StrictRouting
	ex, err := b.resolveExchangeLocked(exchange, create)
	if err != nil {
		return 0, err
	}
	return ex.publish(msg, routingKey, create)
}

// Stats returns a snapshot of every queue, ordered by exchange then queue name.
func (b *Broker) Stats() ([]QueueStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}

	b.regMu.Lock()
	names := slices.Sorted(maps.Keys(b.exchanges))
	exchanges := make([]*Exchange, 0, len(names))
	for _, name := range names {
		exchanges = append(exchanges, b.exchanges[name])
	}
	b.regMu.Unlock()

	var out []QueueStats
	for _, ex := range exchanges {
		out = append(out, ex.stats()...)
	}
	return out, nil
}

// resolveExchangeLocked requires b.mu held for reading.
func (b *Broker) resolveExchangeLocked(name string, create bool) (*Exchange, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	b.regMu.Lock()
	defer b.regMu.Unlock()
	if ex, ok := b.exchanges[name]; ok {
		return ex, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchExchange, name)
	}

	ex := newExchange(name, b)
	b.exchanges[name] = ex
	b.metrics.SetExchanges(len(b.exchanges))
	b.log.Debugw("exchange declared", "exchange", name)
	return ex, nil
}

// resolveQueueLocked requires b.mu held for reading.
func (b *Broker) resolveQueueLocked(exchange, name string, create bool) (*Queue, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	ex, err := b.resolveExchangeLocked(exchange, create)
	if err != nil {
		return nil, err
	}
	return ex.resolveQueue(name, create)
}

func (b *Broker) addSub(s *subscription) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.subs[s] = struct{}{}
}

func (b *Broker) removeSub(s *subscription) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	delete(b.subs, s)
}
