// Package messaging implements an in-process publish/subscribe broker with
// exchange/queue routing.
//
// Terminology
//   - Exchange: a named routing node. A published message carries a routing key
//     and the exchange copies it into every queue bound under that key.
//   - Queue: a FIFO buffer owned by one exchange. Messages published while nobody
//     is subscribed are kept until a consumer attaches, or until the broker is
//     cleaned up.
//   - Communicator: a client handle with an identity and a Handler. It publishes
//     messages and runs one subscription worker per subscribed queue.
//
// Main components
//   - Broker: the registry of exchanges. It must be initialized with Init and is
//     torn down with Cleanup; every operation outside that window fails with
//     ErrNotInitialized. The broker assigns every published message a sequence id
//     that increases monotonically across all of its exchanges.
//   - Subscription worker: one goroutine per (communicator, queue). It waits for the
//     queue to signal new messages, with Config.PollInterval as an upper bound, and
//     hands messages to the Handler one at a time.
//
// Routing
//   - Lenient (default): publishing or subscribing to an unknown exchange or queue
//     creates it. A queue created this way is bound under its own name.
//   - Strict (Config.StrictRouting): unknown exchanges yield ErrNoSuchExchange and a
//     routing key with no bound queue yields ErrNoSuchQueue. Use DeclareExchange,
//     ResolveQueue and BindKey to build the topology up front.
//
// Ordering and delivery
//   - Publishing through one exchange is serialized, so every queue receives messages
//     in sequence order regardless of how many goroutines publish.
//   - A queue has at most one consumer. Unsubscribing detaches it under the queue lock:
//     later messages stay buffered and the next subscriber resumes where the previous
//     one stopped, after the previous worker has finished its last message.
//   - Delivery is at-most-once. Handler errors and panics are logged and counted, and
//     the worker moves on to the next message.
//
// Cancellation
//   - Unsubscribe and Communicator.Close cancel the context passed to the Handler.
//     Unsubscribe does not wait and may be called from inside a Handler.
//   - Broker.Cleanup stops every worker, discards pending messages and waits up to
//     Config.DrainTimeout for workers to exit.
package messaging
