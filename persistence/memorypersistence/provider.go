// Package memorypersistence provides an implementation of the persistence
// contract that stores data in memory.
package memorypersistence

import (
	"context"
	"sync"
	"time"

	"github.com/Broccode/acci-eaf-sub000/persistence"
)

// Provider is an implementation of persistence.Provider that stores data in
// memory.
//
// All data stores opened from the same provider share the same underlying
// database. Data does not survive the process.
type Provider struct {
	m  sync.Mutex
	db *database
}

// Open returns a data store backed by the provider's in-memory database.
func (p *Provider) Open(ctx context.Context) (persistence.DataStore, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	p.m.Lock()
	defer p.m.Unlock()

	if p.db == nil {
		p.db = newDatabase()
	}

	return &dataStore{
		db:     p.db,
		closed: make(chan struct{}),
	}, nil
}

type streamKey struct {
	tenantID string
	streamID string
}

type ledgerKey struct {
	projector string
	eventID   string
	tenantID  string
}

type resourceKey struct {
	tenantID string
	bucket   string
	key      string
}

// claim is a pending, uncommitted dedup ledger entry.
//
// done is closed when the transaction holding the claim resolves, waking any
// competing transactions so they can re-examine the ledger.
type claim struct {
	done chan struct{}
}

// database is the mutable state shared by all data stores opened from the
// same provider.
type database struct {
	m         sync.Mutex
	records   []persistence.Record
	streams   map[streamKey][]int
	snapshots map[streamKey]persistence.Snapshot
	ledger    map[ledgerKey]time.Time
	claims    map[ledgerKey]*claim
	resources map[resourceKey][]byte

	// ready is closed and replaced whenever records are appended, waking
	// blocked global cursors. It is created lazily by the first cursor to
	// reach the head of the stream.
	ready chan struct{}
}

func newDatabase() *database {
	return &database{
		streams:   map[streamKey][]int{},
		snapshots: map[streamKey]persistence.Snapshot{},
		ledger:    map[ledgerKey]time.Time{},
		claims:    map[ledgerKey]*claim{},
		resources: map[resourceKey][]byte{},
	}
}

// signal wakes any cursors blocked at the head of the stream.
//
// It must be called while holding db.m.
func (db *database) signal() {
	if db.ready != nil {
		close(db.ready)
		db.ready = nil
	}
}

// wait returns a channel that is closed the next time records are appended.
//
// It must be called while holding db.m.
func (db *database) wait() <-chan struct{} {
	if db.ready == nil {
		db.ready = make(chan struct{})
	}

	return db.ready
}
