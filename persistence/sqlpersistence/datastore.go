package sqlpersistence

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/Broccode/acci-eaf-sub000/persistence"
)

// dataStore is an implementation of persistence.DataStore backed by an SQL
// database.
type dataStore struct {
	db     *sql.DB
	driver Driver

	once   sync.Once
	closed chan struct{}
}

func newDataStore(db *sql.DB, d Driver) *dataStore {
	return &dataStore{
		db:     db,
		driver: d,
		closed: make(chan struct{}),
	}
}

func (ds *dataStore) NextGlobalSequence(ctx context.Context) (uint64, error) {
	if err := ds.guard(ctx); err != nil {
		return 0, err
	}

	n, err := ds.driver.SelectNextGlobalSequence(ctx, ds.db)

	return n, ds.translate(err)
}

func (ds *dataStore) SaveSnapshot(
	ctx context.Context,
	snap persistence.Snapshot,
) error {
	if err := ds.guard(ctx); err != nil {
		return err
	}

	return ds.translate(
		ds.driver.UpsertSnapshot(ctx, ds.db, snap),
	)
}

func (ds *dataStore) LoadSnapshot(
	ctx context.Context,
	tenantID, streamID string,
) (persistence.Snapshot, bool, error) {
	if err := ds.guard(ctx); err != nil {
		return persistence.Snapshot{}, false, err
	}

	snap, ok, err := ds.driver.SelectSnapshot(ctx, ds.db, tenantID, streamID)

	return snap, ok, ds.translate(err)
}

func (ds *dataStore) LoadResource(
	ctx context.Context,
	tenantID, bucket, key string,
) ([]byte, bool, error) {
	if err := ds.guard(ctx); err != nil {
		return nil, false, err
	}

	v, ok, err := ds.driver.SelectResource(ctx, ds.db, tenantID, bucket, key)

	return v, ok, ds.translate(err)
}

func (ds *dataStore) Begin(ctx context.Context) (persistence.Transaction, error) {
	if err := ds.guard(ctx); err != nil {
		return nil, err
	}

	actual, err := ds.driver.Begin(ctx, ds.db)
	if err != nil {
		return nil, ds.translate(err)
	}

	return &transaction{ds: ds, actual: actual}, nil
}

func (ds *dataStore) PruneProcessedEvents(
	ctx context.Context,
	before time.Time,
) (int64, error) {
	if err := ds.guard(ctx); err != nil {
		return 0, err
	}

	n, err := ds.driver.DeleteProcessedEventsBefore(ctx, ds.db, before)

	return n, ds.translate(err)
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

// translate maps driver errors onto the engine's error taxonomy.
func (ds *dataStore) translate(err error) error {
	if err == nil {
		return nil
	}

	if ds.driver.IsUnavailable(err) {
		return persistence.UnavailableError{Cause: err}
	}

	return err
}
