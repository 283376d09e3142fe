package queue

import "context"

// Msg represents a queue message.
//
// Exchange and RoutingKey identify the destination.
// Key is carried as the correlation id of the published message.
// Value contains the message payload.
// Headers contains additional metadata.
type Msg struct {
	Exchange   string
	RoutingKey string
	Key        []byte
	Value      []byte
	Headers    map[string]string
}

type QueuePublisher interface {
	// Publish publishes a message to the underlying queue.
	//
	// Implementations may block until the message is accepted or fail early
	// depending on the underlying system.
	Publish(ctx context.Context, message Msg) error

	// Close stops the publisher and releases all resources.
	//
	// Close MUST be called exactly once. Implementations may block while
	// flushing in-flight messages.
	Close(ctx context.Context)
}
