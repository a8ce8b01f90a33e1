package memorypersistence

import (
	"context"
	"sync"

	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/persistence"
)

// streamResult is a persistence.StreamResult over a slice of records
// captured at open time.
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

// globalCursor is an eventstream.Cursor over the database's global record
// order.
type globalCursor struct {
	ds    *dataStore
	next  uint64
	block bool

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

		ev, ready := c.get()

		if ready == nil {
			return ev, nil
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
			continue
		}
	}
}

// get returns the record at the cursor's position, or if the cursor has
// reached the head of the stream, a channel that is closed when the next
// record is appended.
func (c *globalCursor) get() (eventstream.Event, <-chan struct{}) {
	db := c.ds.db

	db.m.Lock()
	defer db.m.Unlock()

	if c.next <= uint64(len(db.records)) {
		rec := db.records[c.next-1]
		c.next++

		return rec.StreamEvent(), nil
	}

	return eventstream.Event{}, db.wait()
}

func (c *globalCursor) Close() error {
	err := eventstream.ErrCursorClosed

	c.once.Do(func() {
		err = nil
		close(c.closed)
	})

	return err
}
