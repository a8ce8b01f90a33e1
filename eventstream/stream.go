package eventstream

import (
	"context"
	"errors"

	"github.com/Broccode/acci-eaf-sub000/envelope"
)

// ErrCursorClosed is returned by Cursor.Next() and Close() if the cursor is
// already closed.
var ErrCursorClosed = errors.New("cursor is closed")

// ErrEndOfStream is returned by Cursor.Next() on a non-blocking cursor when
// all currently committed events have been returned.
var ErrEndOfStream = errors.New("end of stream")

// Event is an event at a specific position on the global stream.
type Event struct {
	// StreamID is the identity of the aggregate stream the event belongs to.
	StreamID string

	// Revision is the event's 1-based position within its aggregate stream.
	Revision uint64

	// Token is the tracking token that covers this event and all events
	// before it.
	Token Token

	// Envelope contains the event and its meta-data.
	Envelope *envelope.Envelope
}

// A Stream is the totally-ordered sequence of all committed events.
type Stream interface {
	// Open returns a cursor used to read events from this stream in global
	// order, starting with the first event not covered by tok.
	//
	// If block is true the cursor waits for new events once it reaches the
	// head of the stream; otherwise Next() returns ErrEndOfStream.
	Open(ctx context.Context, tok Token, block bool) (Cursor, error)
}

// A Cursor reads events from a stream.
//
// Cursors are not safe for concurrent use.
type Cursor interface {
	// Next returns the next event in the stream.
	//
	// Events are produced in strictly increasing global order with no gaps
	// and no duplicates.
	Next(ctx context.Context) (Event, error)

	// Close stops the cursor.
	//
	// Any blocked or future calls to Next() return ErrCursorClosed.
	Close() error
}
