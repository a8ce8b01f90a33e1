package eventstream

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/semaphore"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
)

// Handler handles events consumed from a stream.
type Handler interface {
	// NextToken returns the token of the position from which consumption
	// should begin or resume.
	NextToken(ctx context.Context) (Token, error)

	// HandleEvent handles an event obtained from the stream.
	//
	// tok must be the token that would be returned by NextToken(). On
	// success, the next call to NextToken() returns ev.Token.
	HandleEvent(ctx context.Context, tok Token, ev Event) error
}

// Consumer reads events from a stream in order to handle them.
type Consumer struct {
	// Stream is the event stream to consume.
	Stream Stream

	// Handler is the target for the events from the stream.
	Handler Handler

	// Semaphore is used to limit the number of events being handled
	// concurrently across consumers.
	Semaphore semaphore.Semaphore

	// BackoffStrategy is the strategy used to delay restarting the consumer
	// after a failure. If it is nil, backoff.DefaultStrategy is used.
	BackoffStrategy backoff.Strategy

	// Logger is the target for log messages from the consumer.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger

	token         Token
	backoff       backoff.Counter
	handlerFailed bool
}

// Run consumes events from the stream until ctx is canceled.
//
// Failures of the stream or the handler restart consumption from the
// handler's next token, delayed per the backoff strategy.
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
			"delaying next consumption attempt for %s: %s",
			delay,
			err,
		)

		if err := linger.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// consume opens the stream and handles events until an error occurs.
func (c *Consumer) consume(ctx context.Context) error {
	cur, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer cur.Close()

	for {
		if err := c.consumeNext(ctx, cur); err != nil {
			return err
		}
	}
}

// open opens a stream cursor based on the token given by the handler.
func (c *Consumer) open(ctx context.Context) (Cursor, error) {
	var err error
	c.token, err = c.Handler.NextToken(ctx)
	if err != nil {
		return nil, err
	}

	logging.Debug(
		c.Logger,
		"consuming from the global stream, beginning at %s",
		c.token,
	)

	return c.Stream.Open(ctx, c.token, true)
}

// consumeNext waits for the next event on the stream then handles it.
func (c *Consumer) consumeNext(ctx context.Context, cur Cursor) error {
	ev, err := cur.Next(ctx)
	if err != nil {
		return err
	}

	// We've successfully obtained an event from the stream. If the last
	// failure was caused by the stream (and not the handler), reset the
	// failure count now, otherwise only reset it once we manage to actually
	// handle the event.
	if !c.handlerFailed {
		c.backoff.Reset()
	}

	if err := c.Semaphore.Acquire(ctx); err != nil {
		return err
	}
	defer c.Semaphore.Release()

	if err := c.Handler.HandleEvent(ctx, c.token, ev); err != nil {
		c.handlerFailed = true
		return err
	}

	c.token = ev.Token
	c.handlerFailed = false
	c.backoff.Reset()

	return nil
}
