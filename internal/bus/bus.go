// Package bus provides the event fabric that connects the pipeline stages.
//
// Publishing is fire-and-forget: the caller never blocks on subscriber
// execution. Per-topic publish order is preserved and handlers on a topic
// run sequentially; there is no ordering across topics. A handler error is
// logged and isolated, it never affects other handlers or the publisher.
//
// Delivery is at-least-once to currently registered handlers only. Events
// published before a handler subscribes are lost to that handler; replay
// is served externally by the audit log.
//
// Two transports implement the same interface: an in-process memory bus
// for embedded and test use, and a Redis Pub/Sub bus for multi-process
// deployments. Payloads cross both as JSON bytes so the transports stay
// interchangeable.
package bus

import "context"

// Handler processes one event payload. The payload is the JSON encoding
// of the published value. Returning an error marks the delivery failed
// for logging; it does not trigger redelivery.
type Handler func(ctx context.Context, payload []byte) error

// Bus is the transport-neutral event contract the orchestrator is wired
// against.
type Bus interface {
	// Publish emits an event on a topic. The payload is JSON-marshaled.
	// Returns once the transport has accepted the event, without waiting
	// for any handler.
	Publish(ctx context.Context, topic string, payload any) error

	// Subscribe registers a handler for every subsequent event on the
	// topic. Handlers run with the bus lifetime context, not the
	// publisher's.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close stops delivery and releases transport resources.
	// Safe to call multiple times.
	Close() error
}
