package messaging

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/semaphore"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
)

// Handler handles event envelopes received from the transport.
type Handler interface {
	// HandleMessage handles a single envelope.
	//
	// ctx carries the tenant scope rebuilt from the message's meta-data.
	// An error causes the delivery to be rejected and redelivered later.
	HandleMessage(ctx context.Context, env *envelope.Envelope) error
}

// Consumer receives messages from the transport and dispatches them to a
// handler, re-establishing the originating tenant scope for each delivery.
//
// The scope exists only for the duration of the handler invocation. It is
// torn down on every exit path, including handler panics, because it lives on
// the per-delivery context rather than on any shared state.
type Consumer struct {
	// Transport is the message bus to consume from.
	Transport Transport

	// Pattern is the subject pattern to subscribe to.
	Pattern string

	// Handler is the target for received envelopes.
	Handler Handler

	// Semaphore is used to limit the number of messages being handled
	// concurrently across consumers.
	Semaphore semaphore.Semaphore

	// BackoffStrategy is the strategy used to delay restarting the consumer
	// after a failure. If it is nil, backoff.DefaultStrategy is used.
	BackoffStrategy backoff.Strategy

	// Logger is the target for log messages from the consumer.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger

	backoff backoff.Counter
}

// Run receives messages from the transport until ctx is canceled.
//
// Failures of the subscription restart consumption, delayed per the backoff
// strategy. Handler failures reject only the affected delivery.
func (c *Consumer) Run(ctx context.Context) error {
	c.backoff = backoff.Counter{
		Strategy: c.BackoffStrategy,
	}

	for {
		err := c.consume(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := c.backoff.Fail(err)

		logging.Log(
			c.Logger,
			"delaying next subscription attempt for %s: %s",
			delay,
			err,
		)

		if err := linger.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// consume subscribes to the transport and handles deliveries until an error
// occurs.
func (c *Consumer) consume(ctx context.Context) error {
	sub, err := c.Transport.Subscribe(ctx, c.Pattern)
	if err != nil {
		return err
	}
	defer sub.Close()

	logging.Debug(
		c.Logger,
		"consuming messages matching %s",
		c.Pattern,
	)

	for {
		d, err := sub.Receive(ctx)
		if err != nil {
			return err
		}

		c.backoff.Reset()

		if err := c.dispatch(ctx, d); err != nil {
			return err
		}
	}
}

// dispatch handles a single delivery, acknowledging or rejecting it based on
// the outcome.
func (c *Consumer) dispatch(ctx context.Context, d Delivery) error {
	if err := c.Semaphore.Acquire(ctx); err != nil {
		return err
	}
	defer c.Semaphore.Release()

	env, err := unmarshalDelivery(d)
	if err != nil {
		// The message can never become valid; redelivering it would loop
		// forever, so it is acknowledged and dropped.
		logging.Log(
			c.Logger,
			"dropped an unprocessable message on subject %s: %s",
			d.Subject,
			err,
		)

		return d.Ack()
	}

	scope := tenant.Scope{
		TenantID:      env.TenantID,
		UserID:        env.UserID,
		CorrelationID: env.CorrelationID,
	}

	if err := c.Handler.HandleMessage(
		tenant.With(ctx, scope),
		env,
	); err != nil {
		logging.Log(
			c.Logger,
			"rejected %s event %s for tenant %s: %s",
			env.EventType,
			env.MessageID,
			env.TenantID,
			err,
		)

		return d.Nack()
	}

	return d.Ack()
}
