// Package boltpersistence provides an implementation of the persistence
// contract backed by a BoltDB database.
package boltpersistence

import (
	"context"
	"os"
	"sync"

	"github.com/Broccode/acci-eaf-sub000/internal/x/bboltx"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"go.etcd.io/bbolt"
)

// Provider is an implementation of persistence.Provider that stores data in
// an existing BoltDB database.
type Provider struct {
	// DB is the BoltDB database to use.
	DB *bbolt.DB

	m     sync.Mutex
	state *state
}

// Open returns a data store backed by the provider's database.
func (p *Provider) Open(ctx context.Context) (persistence.DataStore, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	p.m.Lock()
	defer p.m.Unlock()

	if p.state == nil {
		p.state = &state{db: p.DB}
	}

	return newDataStore(p.state), nil
}

// FileProvider is an implementation of persistence.Provider that stores data
// in a BoltDB database on disk, opening the file on first use.
type FileProvider struct {
	// Path is the path to the BoltDB database to open or create.
	Path string

	// Mode is the file mode for the created file. If it is zero, 0600 is
	// used.
	Mode os.FileMode

	// Options is the BoltDB options for the database. If it is nil,
	// bbolt.DefaultOptions is used.
	Options *bbolt.Options

	m     sync.Mutex
	state *state
}

// Open returns a data store backed by the provider's database file.
func (p *FileProvider) Open(ctx context.Context) (persistence.DataStore, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.state == nil {
		db, err := bboltx.Open(ctx, p.Path, p.Mode, p.Options)
		if err != nil {
			return nil, err
		}

		p.state = &state{db: db}
	}

	return newDataStore(p.state), nil
}

// state is the BoltDB database and the append notification shared by all
// data stores opened from the same provider.
type state struct {
	db *bbolt.DB

	m     sync.Mutex
	ready chan struct{}
}

// signal wakes any cursors blocked at the head of the stream.
//
// It is called after an append transaction commits.
func (s *state) signal() {
	s.m.Lock()
	defer s.m.Unlock()

	if s.ready != nil {
		close(s.ready)
		s.ready = nil
	}
}

// wait returns a channel that is closed the next time records are appended.
func (s *state) wait() <-chan struct{} {
	s.m.Lock()
	defer s.m.Unlock()

	if s.ready == nil {
		s.ready = make(chan struct{})
	}

	return s.ready
}
