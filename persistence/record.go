package persistence

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
)

// Record is a persisted event.
type Record struct {
	// TenantID is the tenant that owns the record.
	TenantID string

	// StreamID is the identity of the aggregate stream the record belongs
	// to. Stream IDs are scoped to a tenant; the same stream ID under two
	// tenants identifies two unrelated streams.
	StreamID string

	// Revision is the record's 1-based position within its stream. It is
	// gap-free and unique per (tenant, stream).
	Revision uint64

	// GlobalSequence is the record's position in commit order across the
	// entire store. It is strictly increasing and gap-free; no record is
	// visible to readers before all records with lower global sequences are
	// committed.
	GlobalSequence uint64

	// Envelope contains the event and its meta-data.
	Envelope *envelope.Envelope
}

// StreamEvent returns the record as an event on the global stream.
func (r Record) StreamEvent() eventstream.Event {
	return eventstream.Event{
		StreamID: r.StreamID,
		Revision: r.Revision,
		Token:    eventstream.Token{GlobalSequence: r.GlobalSequence},
		Envelope: r.Envelope,
	}
}

// StreamResult is the finite, ordered result of reading a single aggregate
// stream.
//
// StreamResult values are not safe for concurrent use.
type StreamResult interface {
	// Next returns the next record in the result.
	//
	// It returns false if there are no more records in the result.
	Next(ctx context.Context) (Record, bool, error)

	// Close closes the result.
	Close() error
}
