package memorypersistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/persistence"
)

// dataStore is an implementation of persistence.DataStore backed by an
// in-memory database.
type dataStore struct {
	db *database

	once   sync.Once
	closed chan struct{}
}

func (ds *dataStore) AppendEvents(
	ctx context.Context,
	tenantID, streamID string,
	expectedRevision uint64,
	envelopes []*envelope.Envelope,
) ([]persistence.Record, error) {
	if err := ds.guard(ctx); err != nil {
		return nil, err
	}

	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID must not be empty")
	}

	for _, env := range envelopes {
		if err := env.Validate(); err != nil {
			return nil, err
		}

		if env.TenantID != tenantID {
			return nil, fmt.Errorf(
				"envelope %s belongs to tenant %s, not %s",
				env.MessageID,
				env.TenantID,
				tenantID,
			)
		}
	}

	if len(envelopes) == 0 {
		return nil, nil
	}

	ds.db.m.Lock()
	defer ds.db.m.Unlock()

	k := streamKey{tenantID, streamID}
	indexes := ds.db.streams[k]

	if uint64(len(indexes)) != expectedRevision {
		return nil, persistence.ConflictError{
			TenantID:         tenantID,
			StreamID:         streamID,
			ExpectedRevision: expectedRevision,
		}
	}

	records := make([]persistence.Record, 0, len(envelopes))

	for i, env := range envelopes {
		rec := persistence.Record{
			TenantID:       tenantID,
			StreamID:       streamID,
			Revision:       expectedRevision + uint64(i) + 1,
			GlobalSequence: uint64(len(ds.db.records)) + 1,
			Envelope:       env,
		}

		ds.db.records = append(ds.db.records, rec)
		ds.db.streams[k] = append(ds.db.streams[k], len(ds.db.records)-1)
		records = append(records, rec)
	}

	ds.db.signal()

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

	ds.db.m.Lock()
	defer ds.db.m.Unlock()

	if fromRevision == 0 {
		fromRevision = 1
	}

	var records []persistence.Record
	for _, i := range ds.db.streams[streamKey{tenantID, streamID}] {
		rec := ds.db.records[i]
		if rec.Revision >= fromRevision {
			records = append(records, rec)
		}
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

	ds.db.m.Lock()
	defer ds.db.m.Unlock()

	return uint64(len(ds.db.records)) + 1, nil
}

func (ds *dataStore) SaveSnapshot(
	ctx context.Context,
	snap persistence.Snapshot,
) error {
	if err := ds.guard(ctx); err != nil {
		return err
	}

	ds.db.m.Lock()
	defer ds.db.m.Unlock()

	ds.db.snapshots[streamKey{snap.TenantID, snap.StreamID}] = snap

	return nil
}

func (ds *dataStore) LoadSnapshot(
	ctx context.Context,
	tenantID, streamID string,
) (persistence.Snapshot, bool, error) {
	if err := ds.guard(ctx); err != nil {
		return persistence.Snapshot{}, false, err
	}

	ds.db.m.Lock()
	defer ds.db.m.Unlock()

	snap, ok := ds.db.snapshots[streamKey{tenantID, streamID}]

	return snap, ok, nil
}

func (ds *dataStore) LoadResource(
	ctx context.Context,
	tenantID, bucket, key string,
) ([]byte, bool, error) {
	if err := ds.guard(ctx); err != nil {
		return nil, false, err
	}

	ds.db.m.Lock()
	defer ds.db.m.Unlock()

	v, ok := ds.db.resources[resourceKey{tenantID, bucket, key}]

	return v, ok, nil
}

func (ds *dataStore) Begin(ctx context.Context) (persistence.Transaction, error) {
	if err := ds.guard(ctx); err != nil {
		return nil, err
	}

	return &transaction{ds: ds}, nil
}

func (ds *dataStore) PruneProcessedEvents(
	ctx context.Context,
	before time.Time,
) (int64, error) {
	if err := ds.guard(ctx); err != nil {
		return 0, err
	}

	ds.db.m.Lock()
	defer ds.db.m.Unlock()

	var n int64
	for k, at := range ds.db.ledger {
		if at.Before(before) {
			delete(ds.db.ledger, k)
			n++
		}
	}

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
