// Package queue provides abstractions and implementations for publishing
// messages to queues.
//
// The package defines a common publisher interface with explicit lifecycle
// management. BrokerPublisher implements it on top of an in-process
// messaging.Broker, retrying while the destination queue is full.
//
// All QueuePublisher implementations require Close to be called exactly once
// to release resources.
package queue
