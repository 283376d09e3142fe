package messaging

import "errors"

var (
	ErrNotInitialized     = errors.New("messaging: broker not initialized")
	ErrAlreadyInitialized = errors.New("messaging: broker already initialized")
	ErrNoSuchExchange     = errors.New("messaging: no such exchange")
	ErrNoSuchQueue        = errors.New("messaging: no such queue")
	ErrWorkerAttach       = errors.New("messaging: subscription worker could not be attached")
	ErrQueueBusy          = errors.New("messaging: queue already has an active consumer")
	ErrQueueFull          = errors.New("messaging: queue is full")
	ErrInvalidMessage     = errors.New("messaging: message has no payload")
	ErrEmptyName          = errors.New("messaging: exchange and queue names must not be empty")
	ErrNotSubscribed      = errors.New("messaging: not subscribed")
	ErrHandlerPanic       = errors.New("messaging: handler panicked")
)
