package boltpersistence

import (
	"context"
	"sync"

	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/internal/x/bboltx"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"go.etcd.io/bbolt"
)

// streamResult is a persistence.StreamResult over a slice of records read at
// open time.
type streamResult struct {
	records []persistence.Record
	closed  bool
}

func (r *streamResult) Next(
	ctx context.Context,
) (persistence.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Record{}, false, err
	}

	if r.closed || len(r.records) == 0 {
		return persistence.Record{}, false, nil
	}

	rec := r.records[0]
	r.records = r.records[1:]

	return rec, true, nil
}

func (r *streamResult) Close() error {
	r.closed = true
	return nil
}

// globalCursor is an eventstream.Cursor over the events bucket.
//
// It blocks on the provider's append notification rather than polling.
type globalCursor struct {
	ds      *dataStore
	next    uint64
	block   bool
	pending []persistence.Record

	once   sync.Once
	closed chan struct{}
}

func (c *globalCursor) Next(ctx context.Context) (eventstream.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return eventstream.Event{}, ctx.Err()
		case <-c.closed:
			return eventstream.Event{}, eventstream.ErrCursorClosed
		case <-c.ds.closed:
			return eventstream.Event{}, persistence.ErrDataStoreClosed
		default:
		}

		if len(c.pending) != 0 {
			rec := c.pending[0]
			c.pending = c.pending[1:]
			c.next = rec.GlobalSequence + 1

			return rec.StreamEvent(), nil
		}

		// Grab the notification channel before reading so that an append
		// that lands between the read and the wait is never missed.
		ready := c.ds.state.wait()

		if err := c.fetch(ctx); err != nil {
			return eventstream.Event{}, err
		}

		if len(c.pending) != 0 {
			continue
		}

		if !c.block {
			return eventstream.Event{}, eventstream.ErrEndOfStream
		}

		select {
		case <-ctx.Done():
			return eventstream.Event{}, ctx.Err()
		case <-c.closed:
			return eventstream.Event{}, eventstream.ErrCursorClosed
		case <-c.ds.closed:
			return eventstream.Event{}, persistence.ErrDataStoreClosed
		case <-ready:
		}
	}
}

// fetch loads the next batch of records at and after the cursor's position.
func (c *globalCursor) fetch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	const batchSize = 100

	return c.ds.state.db.View(func(tx *bbolt.Tx) error {
		events := bboltx.Bucket(tx, eventsBucketKey)
		if events == nil {
			return nil
		}

		cur := events.Cursor()

		for k, v := cur.Seek(marshalUint64(c.next)); k != nil; k, v = cur.Next() {
			rec, err := unmarshalRecord(unmarshalUint64(k), v)
			if err != nil {
				return err
			}

			c.pending = append(c.pending, rec)

			if len(c.pending) >= batchSize {
				return nil
			}
		}

		return nil
	})
}

func (c *globalCursor) Close() error {
	err := eventstream.ErrCursorClosed

	c.once.Do(func() {
		err = nil
		close(c.closed)
	})

	return err
}
