package boltpersistence

import (
	"context"
	"sync"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/internal/x/bboltx"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"go.etcd.io/bbolt"
)

// dataStore is an implementation of persistence.DataStore backed by a BoltDB
// database.
type dataStore struct {
	state *state

	once   sync.Once
	closed chan struct{}
}

func newDataStore(s *state) *dataStore {
	return &dataStore{
		state:  s,
		closed: make(chan struct{}),
	}
}

func (ds *dataStore) AppendEvents(
	ctx context.Context,
	tenantID, streamID string,
	expectedRevision uint64,
	envelopes []*envelope.Envelope,
) (_ []persistence.Record, err error) {
	defer bboltx.Recover(&err)

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

	tx := bboltx.BeginWrite(ds.state.db)
	defer tx.Rollback()

	events := bboltx.CreateBucketIfNotExists(tx, eventsBucketKey)
	stream := bboltx.CreateBucketIfNotExists(
		tx,
		streamsBucketKey,
		[]byte(tenantID),
		[]byte(streamID),
	)

	if rev := lastKey(stream); rev != expectedRevision {
		return nil, persistence.ConflictError{
			TenantID:         tenantID,
			StreamID:         streamID,
			ExpectedRevision: expectedRevision,
		}
	}

	gseq := lastKey(events)
	records := make([]persistence.Record, 0, len(envelopes))

	for i, env := range envelopes {
		gseq++

		rec := persistence.Record{
			TenantID:       tenantID,
			StreamID:       streamID,
			Revision:       expectedRevision + uint64(i) + 1,
			GlobalSequence: gseq,
			Envelope:       env,
		}

		data, err := marshalRecord(rec)
		if err != nil {
			return nil, err
		}

		bboltx.Put(events, marshalUint64(gseq), data)
		bboltx.Put(stream, marshalUint64(rec.Revision), marshalUint64(gseq))

		records = append(records, rec)
	}

	bboltx.Commit(tx)
	ds.state.signal()

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

	var records []persistence.Record

	err := ds.state.db.View(func(tx *bbolt.Tx) error {
		events := bboltx.Bucket(tx, eventsBucketKey)
		stream := bboltx.Bucket(
			tx,
			streamsBucketKey,
			[]byte(tenantID),
			[]byte(streamID),
		)

		if events == nil || stream == nil {
			return nil
		}

		cur := stream.Cursor()

		for k, v := cur.Seek(marshalUint64(fromRevision)); k != nil; k, v = cur.Next() {
			gseq := unmarshalUint64(v)

			rec, err := unmarshalRecord(gseq, events.Get(v))
			if err != nil {
				return err
			}

			records = append(records, rec)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &streamResult{records: records}, nil
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
		next:   tok.GlobalSequence + 1,
		block:  block,
		closed: make(chan struct{}),
	}, nil
}

func (ds *dataStore) NextGlobalSequence(ctx context.Context) (uint64, error) {
	if err := ds.guard(ctx); err != nil {
		return 0, err
	}

	var next uint64

	err := ds.state.db.View(func(tx *bbolt.Tx) error {
		next = 1

		if events := bboltx.Bucket(tx, eventsBucketKey); events != nil {
			next = lastKey(events) + 1
		}

		return nil
	})

	return next, err
}

func (ds *dataStore) SaveSnapshot(
	ctx context.Context,
	snap persistence.Snapshot,
) (err error) {
	defer bboltx.Recover(&err)

	if err := ds.guard(ctx); err != nil {
		return err
	}

	data, err := marshalSnapshot(snap)
	if err != nil {
		return err
	}

	tx := bboltx.BeginWrite(ds.state.db)
	defer tx.Rollback()

	b := bboltx.CreateBucketIfNotExists(
		tx,
		snapshotsBucketKey,
		[]byte(snap.TenantID),
	)

	bboltx.Put(b, []byte(snap.StreamID), data)
	bboltx.Commit(tx)

	return nil
}

func (ds *dataStore) LoadSnapshot(
	ctx context.Context,
	tenantID, streamID string,
) (persistence.Snapshot, bool, error) {
	if err := ds.guard(ctx); err != nil {
		return persistence.Snapshot{}, false, err
	}

	var (
		snap persistence.Snapshot
		ok   bool
	)

	err := ds.state.db.View(func(tx *bbolt.Tx) error {
		b := bboltx.Bucket(tx, snapshotsBucketKey, []byte(tenantID))
		if b == nil {
			return nil
		}

		data := b.Get([]byte(streamID))
		if data == nil {
			return nil
		}

		var err error
		snap, err = unmarshalSnapshot(tenantID, streamID, data)
		ok = err == nil

		return err
	})

	return snap, ok, err
}

func (ds *dataStore) LoadResource(
	ctx context.Context,
	tenantID, bucket, key string,
) ([]byte, bool, error) {
	if err := ds.guard(ctx); err != nil {
		return nil, false, err
	}

	var (
		value []byte
		ok    bool
	)

	err := ds.state.db.View(func(tx *bbolt.Tx) error {
		b := bboltx.Bucket(
			tx,
			resourcesBucketKey,
			[]byte(tenantID),
			[]byte(bucket),
		)
		if b == nil {
			return nil
		}

		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
			ok = true
		}

		return nil
	})

	return value, ok, err
}

func (ds *dataStore) Begin(ctx context.Context) (_ persistence.Transaction, err error) {
	defer bboltx.Recover(&err)

	if err := ds.guard(ctx); err != nil {
		return nil, err
	}

	return &transaction{
		ds:     ds,
		actual: bboltx.BeginWrite(ds.state.db),
	}, nil
}

func (ds *dataStore) PruneProcessedEvents(
	ctx context.Context,
	before time.Time,
) (_ int64, err error) {
	defer bboltx.Recover(&err)

	if err := ds.guard(ctx); err != nil {
		return 0, err
	}

	tx := bboltx.BeginWrite(ds.state.db)
	defer tx.Rollback()

	var n int64

	if ledger := bboltx.Bucket(tx, ledgerBucketKey); ledger != nil {
		n = pruneLedger(ledger, before)
	}

	bboltx.Commit(tx)

	return n, nil
}

func (ds *dataStore) Close() error {
	err := persistence.ErrDataStoreClosed

	ds.once.Do(func() {
		err = nil
		close(ds.closed)
	})

	return err
}

// guard returns an error if the data store is closed or ctx is ended.
func (ds *dataStore) guard(ctx context.Context) error {
	select {
	case <-ds.closed:
		return persistence.ErrDataStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// lastKey returns the last 8-byte big-endian key in b, or zero if b is
// empty.
func lastKey(b *bbolt.Bucket) uint64 {
	k, _ := b.Cursor().Last()
	return unmarshalUint64(k)
}
