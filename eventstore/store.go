// Package eventstore provides the tenant-aware facade over the persistence
// contract that forms the engine's public storage API.
package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	"github.com/dogmatiq/dodeca/logging"
)

// Store exposes tenant-scoped event storage operations.
//
// Every operation that touches a single stream requires a tenant scope on
// the caller's context and refuses to run without one. Reads of the global
// stream span all tenants; consumers re-establish a per-event scope before
// acting on each record.
type Store struct {
	// DataStore is the persistence backend.
	DataStore persistence.DataStore

	// Logger is the target for log messages about storage operations.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger
}

// Store is usable anywhere the global event stream is consumed.
var _ eventstream.Stream = (*Store)(nil)

// Append atomically appends events to the stream identified by streamID
// within the calling tenant's scope.
//
// expectedRevision is the stream's revision as believed by the caller. The
// append fails with a persistence.ConflictError if the stream's actual
// revision differs at commit time, in which case the caller must reload the
// aggregate and reapply its command; the engine never retries on its own.
func (s *Store) Append(
	ctx context.Context,
	streamID string,
	expectedRevision uint64,
	envelopes []*envelope.Envelope,
) ([]persistence.Record, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}

	for _, env := range envelopes {
		if env.TenantID != scope.TenantID {
			return nil, fmt.Errorf(
				"envelope %s belongs to tenant %s, but the current scope is tenant %s",
				env.MessageID,
				env.TenantID,
				scope.TenantID,
			)
		}
	}

	records, err := s.DataStore.AppendEvents(
		ctx,
		scope.TenantID,
		streamID,
		expectedRevision,
		envelopes,
	)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return records, nil
	}

	logging.Debug(
		s.Logger,
		"appended %d event(s) to stream %s of tenant %s, now at revision %d",
		len(records),
		streamID,
		scope.TenantID,
		records[len(records)-1].Revision,
	)

	return records, nil
}

// ReadStream returns the events of the stream identified by streamID within
// the calling tenant's scope, ordered by revision, beginning at
// fromRevision.
//
// Streams of other tenants are invisible, even under an identical stream ID.
func (s *Store) ReadStream(
	ctx context.Context,
	streamID string,
	fromRevision uint64,
) (persistence.StreamResult, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}

	return s.DataStore.OpenStream(ctx, scope.TenantID, streamID, fromRevision)
}

// ReadFrom returns a cursor over all events across all streams and tenants,
// in global order, beginning with the first event not covered by tok.
//
// If block is true the cursor waits for new events at the head of the
// stream, waking promptly on cancellation; otherwise Next() returns
// eventstream.ErrEndOfStream once all committed events are consumed.
func (s *Store) ReadFrom(
	ctx context.Context,
	tok eventstream.Token,
	block bool,
) (eventstream.Cursor, error) {
	return s.DataStore.OpenGlobal(ctx, tok, block)
}

// Open returns a cursor over the global stream, implementing
// eventstream.Stream.
func (s *Store) Open(
	ctx context.Context,
	tok eventstream.Token,
	block bool,
) (eventstream.Cursor, error) {
	return s.ReadFrom(ctx, tok, block)
}

// StoreSnapshot saves a snapshot of an aggregate's state within the calling
// tenant's scope, superseding any existing snapshot for the stream.
func (s *Store) StoreSnapshot(
	ctx context.Context,
	streamID string,
	revision uint64,
	state []byte,
) error {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return err
	}

	return s.DataStore.SaveSnapshot(
		ctx,
		persistence.Snapshot{
			TenantID:   scope.TenantID,
			StreamID:   streamID,
			Revision:   revision,
			State:      state,
			RecordedAt: time.Now().UTC(),
		},
	)
}

// LoadSnapshot returns the live snapshot of a stream within the calling
// tenant's scope, if one exists.
func (s *Store) LoadSnapshot(
	ctx context.Context,
	streamID string,
) (persistence.Snapshot, bool, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return persistence.Snapshot{}, false, err
	}

	return s.DataStore.LoadSnapshot(ctx, scope.TenantID, streamID)
}

// TailToken returns the token that precedes all events.
func (s *Store) TailToken() eventstream.Token {
	return eventstream.TailToken()
}

// HeadToken returns the token that covers every event committed at the time
// of the call.
func (s *Store) HeadToken(ctx context.Context) (eventstream.Token, error) {
	next, err := s.DataStore.NextGlobalSequence(ctx)
	if err != nil {
		return eventstream.Token{}, err
	}

	return eventstream.Token{GlobalSequence: next - 1}, nil
}
