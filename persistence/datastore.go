package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"go.uber.org/multierr"
)

// ErrDataStoreClosed is returned when performing any persistence operation
// on a closed data-store.
var ErrDataStoreClosed = errors.New("data store is closed")

// DataStore is an interface used by the engine to persist and retrieve event
// records, snapshots, projection dedup entries and read-model resources.
//
// Data stores are safe for concurrent use.
type DataStore interface {
	// AppendEvents atomically appends events to an aggregate stream.
	//
	// expectedRevision is the stream's revision as believed by the caller.
	// If the stream's actual revision differs at commit time the append
	// fails with a ConflictError and nothing is persisted. Concurrent
	// appends to the same stream with the same expected revision resolve
	// deterministically; exactly one succeeds.
	//
	// On success it returns the appended records with their assigned
	// revisions and global sequences.
	AppendEvents(
		ctx context.Context,
		tenantID, streamID string,
		expectedRevision uint64,
		envelopes []*envelope.Envelope,
	) ([]Record, error)

	// OpenStream returns the records of a single aggregate stream, ordered
	// by revision, beginning at fromRevision.
	//
	// Records of other tenants are never returned, even for an identical
	// stream ID. A stream that does not exist yields an empty result.
	OpenStream(
		ctx context.Context,
		tenantID, streamID string,
		fromRevision uint64,
	) (StreamResult, error)

	// OpenGlobal returns a cursor over all records across all streams and
	// tenants, in strictly increasing global-sequence order, beginning with
	// the first record not covered by tok.
	//
	// If block is true the cursor waits for new records at the head of the
	// stream; otherwise Next() returns eventstream.ErrEndOfStream.
	OpenGlobal(
		ctx context.Context,
		tok eventstream.Token,
		block bool,
	) (eventstream.Cursor, error)

	// NextGlobalSequence returns the global sequence that will be assigned
	// to the next record committed to the store.
	NextGlobalSequence(ctx context.Context) (uint64, error)

	// SaveSnapshot saves an aggregate snapshot, superseding any existing
	// snapshot for the same stream. It is an idempotent upsert.
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// LoadSnapshot returns the live snapshot for the given stream, if one
	// exists.
	LoadSnapshot(
		ctx context.Context,
		tenantID, streamID string,
	) (Snapshot, bool, error)

	// LoadResource returns the value of a read-model resource, if it exists.
	LoadResource(
		ctx context.Context,
		tenantID, bucket, key string,
	) ([]byte, bool, error)

	// Begin starts a transaction for a projection's atomic dedup-and-apply
	// cycle.
	Begin(ctx context.Context) (Transaction, error)

	// PruneProcessedEvents removes dedup ledger entries recorded before the
	// given time, returning the number of entries removed.
	//
	// Pruning trades storage growth for the possibility of reapplying an
	// event that is redelivered after the cutoff; callers choose the
	// retention window accordingly.
	PruneProcessedEvents(ctx context.Context, before time.Time) (int64, error)

	// Close closes the data store, preventing further reads and writes.
	Close() error
}

// Provider is an interface used by the engine to obtain a data store.
type Provider interface {
	// Open returns the data store, initializing the underlying storage if
	// necessary.
	Open(ctx context.Context) (DataStore, error)
}

// DataStoreSet is a cache of data stores keyed by an arbitrary string,
// opened from a single provider.
type DataStoreSet struct {
	Provider Provider

	m      sync.Mutex
	stores map[string]DataStore
}

// Get returns the data store for the given key.
//
// If the set already contains a data store for the key it is returned,
// otherwise it is opened and added to the set. The caller is NOT responsible
// for closing the data store.
func (s *DataStoreSet) Get(ctx context.Context, k string) (DataStore, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if ds, ok := s.stores[k]; ok {
		return ds, nil
	}

	ds, err := s.Provider.Open(ctx)
	if err != nil {
		return nil, err
	}

	if s.stores == nil {
		s.stores = map[string]DataStore{}
	}

	s.stores[k] = ds

	return ds, nil
}

// Close closes all data stores in the set.
func (s *DataStoreSet) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	stores := s.stores
	s.stores = nil

	var err error
	for _, ds := range stores {
		err = multierr.Append(
			err,
			ds.Close(),
		)
	}

	return err
}
