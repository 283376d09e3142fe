package messaging

import (
	"context"
	"errors"
)

// Handler receives messages delivered to a subscription.
//
// OnMessageReceived is called from the subscription's worker goroutine, one
// message at a time and in queue order. The context is cancelled once the
// subscription starts draining. A returned error is logged and counted; it
// does not stop the subscription and the message is not redelivered.
type Handler interface {
	OnMessageReceived(ctx context.Context, msg Message) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) OnMessageReceived(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// NopHandler discards every message.
type NopHandler struct{}

func (NopHandler) OnMessageReceived(context.Context, Message) error { return nil }

// Result is the outcome reported to a SentHandler after each publish.
type Result int

const (
	ResultSuccess Result = iota
	ResultInvalidMessage
	ResultLinkUnavailable
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultInvalidMessage:
		return "invalid_message"
	case ResultLinkUnavailable:
		return "link_unavailable"
	default:
		return "unknown"
	}
}

// SentHandler is notified after every Communicator.Publish. A Handler that also
// implements SentHandler is picked up automatically.
type SentHandler interface {
	OnMessageSent(msg Message, res Result)
}

func resultOf(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrEmptyName):
		return ResultInvalidMessage
	default:
		return ResultLinkUnavailable
	}
}
