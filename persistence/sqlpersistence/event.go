package sqlpersistence

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/dogmatiq/linger"
)

// idleInterval is the delay between polls of the event table by a blocking
// global cursor that has reached the head of the stream.
const idleInterval = 50 * time.Millisecond

// prefetchLimit is the maximum number of records loaded by a cursor in a
// single query.
const prefetchLimit = 100

func (ds *dataStore) AppendEvents(
	ctx context.Context,
	tenantID, streamID string,
	expectedRevision uint64,
	envelopes []*envelope.Envelope,
) ([]persistence.Record, error) {
	if err := ds.guard(ctx); err != nil {
		return nil, err
	}

	for _, env := range envelopes {
		if err := env.Validate(); err != nil {
			return nil, err
		}
	}

	if len(envelopes) == 0 {
		return nil, nil
	}

	records, err := ds.append(ctx, tenantID, streamID, expectedRevision, envelopes)

	if err == ErrRevisionConflict {
		return nil, persistence.ConflictError{
			TenantID:         tenantID,
			StreamID:         streamID,
			ExpectedRevision: expectedRevision,
		}
	}

	return records, ds.translate(err)
}

// append writes the events within a single database transaction.
//
// The global sequence allocation is part of the transaction, so sequences of
// rolled-back appends are returned to the pool and committed records remain
// gap-free in commit order.
func (ds *dataStore) append(
	ctx context.Context,
	tenantID, streamID string,
	expectedRevision uint64,
	envelopes []*envelope.Envelope,
) ([]persistence.Record, error) {
	tx, err := ds.driver.Begin(ctx, ds.db)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rev, err := ds.driver.SelectStreamRevision(ctx, tx, tenantID, streamID)
	if err != nil {
		return nil, err
	}

	if rev != expectedRevision {
		return nil, ErrRevisionConflict
	}

	first, err := ds.driver.AllocateGlobalSequences(
		ctx,
		tx,
		uint64(len(envelopes)),
	)
	if err != nil {
		return nil, err
	}

	records := make([]persistence.Record, 0, len(envelopes))

	for i, env := range envelopes {
		rec := persistence.Record{
			TenantID:       tenantID,
			StreamID:       streamID,
			Revision:       expectedRevision + uint64(i) + 1,
			GlobalSequence: first + uint64(i),
			Envelope:       env,
		}

		data, err := envelope.Marshal(env)
		if err != nil {
			return nil, err
		}

		// The uniqueness constraint on (tenant, stream, revision) resolves
		// appenders that raced past the revision check above; exactly one of
		// them commits.
		if err := ds.driver.InsertEvent(ctx, tx, rec, data); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return records, nil
}

func (ds *dataStore) OpenStream(
	ctx context.Context,
	tenantID, streamID string,
	fromRevision uint64,
) (persistence.StreamResult, error) {
	if err := ds.guard(ctx); err != nil {
		return nil, err
	}

	if fromRevision == 0 {
		fromRevision = 1
	}

	rows, err := ds.driver.SelectEventsByStream(
		ctx,
		ds.db,
		tenantID,
		streamID,
		fromRevision,
	)
	if err != nil {
		return nil, ds.translate(err)
	}

	return &streamResult{ds: ds, rows: rows}, nil
}

func (ds *dataStore) OpenGlobal(
	ctx context.Context,
	tok eventstream.Token,
	block bool,
) (eventstream.Cursor, error) {
	if err := ds.guard(ctx); err != nil {
		return nil, err
	}

	return &globalCursor{
		ds:     ds,
		after:  tok.GlobalSequence,
		block:  block,
		closed: make(chan struct{}),
	}, nil
}

// scan reads the next record from rows, deserializing its envelope.
func (ds *dataStore) scan(rows *sql.Rows) (persistence.Record, error) {
	rec, data, err := ds.driver.ScanEvent(rows)
	if err != nil {
		return persistence.Record{}, ds.translate(err)
	}

	env, err := envelope.Unmarshal(data)
	if err != nil {
		return persistence.Record{}, persistence.CorruptEventError{
			TenantID:       rec.TenantID,
			StreamID:       rec.StreamID,
			GlobalSequence: rec.GlobalSequence,
			Cause:          err,
		}
	}

	rec.Envelope = env

	return rec, nil
}

// streamResult is a persistence.StreamResult over an open row-set.
type streamResult struct {
	ds   *dataStore
	rows *sql.Rows
}

func (r *streamResult) Next(
	ctx context.Context,
) (persistence.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Record{}, false, err
	}

	if !r.rows.Next() {
		return persistence.Record{}, false, r.ds.translate(r.rows.Err())
	}

	rec, err := r.ds.scan(r.rows)

	return rec, err == nil, err
}

func (r *streamResult) Close() error {
	return r.rows.Close()
}

// globalCursor is an eventstream.Cursor that polls the event table.
type globalCursor struct {
	ds      *dataStore
	after   uint64
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
			c.after = rec.GlobalSequence

			return rec.StreamEvent(), nil
		}

		if err := c.fetch(ctx); err != nil {
			return eventstream.Event{}, err
		}

		if len(c.pending) != 0 {
			continue
		}

		if !c.block {
			return eventstream.Event{}, eventstream.ErrEndOfStream
		}

		if err := linger.Sleep(ctx, idleInterval); err != nil {
			return eventstream.Event{}, err
		}
	}
}

// fetch loads the next batch of records after the cursor's position.
func (c *globalCursor) fetch(ctx context.Context) error {
	rows, err := c.ds.driver.SelectEventsAfterGlobalSequence(
		ctx,
		c.ds.db,
		c.after,
		prefetchLimit,
	)
	if err != nil {
		return c.ds.translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := c.ds.scan(rows)
		if err != nil {
			return err
		}

		c.pending = append(c.pending, rec)
	}

	return c.ds.translate(rows.Err())
}

func (c *globalCursor) Close() error {
	err := eventstream.ErrCursorClosed

	c.once.Do(func() {
		err = nil
		close(c.closed)
	})

	return err
}
