// Package messaging provides the bridge between the engine and the message
// transport, propagating the tenant scope across asynchronous dispatch.
package messaging

import "context"

// Transport is the engine's view of the underlying message bus.
//
// Delivery is at-least-once: a message that is not acknowledged may be
// delivered again, possibly to a different consumer.
type Transport interface {
	// Publish sends a message on the given subject.
	Publish(
		ctx context.Context,
		subject string,
		headers map[string]string,
		payload []byte,
	) error

	// Subscribe returns a subscription that receives messages published on
	// subjects matching the given pattern.
	Subscribe(ctx context.Context, pattern string) (Subscription, error)
}

// Subscription is a stream of inbound deliveries.
type Subscription interface {
	// Receive returns the next delivery, blocking until one is available or
	// ctx is canceled.
	Receive(ctx context.Context) (Delivery, error)

	// Close stops the subscription.
	Close() error
}

// Delivery is a single inbound message along with its acknowledgement
// handle.
type Delivery struct {
	// Subject is the subject the message was published on.
	Subject string

	// Headers is the transport-level message meta-data.
	Headers map[string]string

	// Payload is the message body.
	Payload []byte

	// Ack acknowledges the delivery, preventing redelivery.
	Ack func() error

	// Nack rejects the delivery, requesting redelivery at a later time.
	Nack func() error
}
