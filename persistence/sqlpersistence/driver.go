package sqlpersistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Broccode/acci-eaf-sub000/persistence"
)

// ErrRevisionConflict is returned by Driver.InsertEvent() if the target
// revision is already occupied.
//
// The data store translates it into a persistence.ConflictError.
var ErrRevisionConflict = errors.New("stream revision is already occupied")

// Driver is used to interface with the underlying SQL database.
type Driver interface {
	// IsCompatibleWith returns nil if this driver can be used with db.
	IsCompatibleWith(ctx context.Context, db *sql.DB) error

	// Begin starts a transaction.
	Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error)

	// CreateSchema creates any SQL schema elements required by the driver.
	CreateSchema(ctx context.Context, db *sql.DB) error

	// DropSchema removes any SQL schema elements created by CreateSchema().
	DropSchema(ctx context.Context, db *sql.DB) error

	// AllocateGlobalSequences reserves n global sequences within tx.
	//
	// It returns the first sequence of the contiguous reserved range. The
	// reservation is part of the transaction; if the transaction rolls back
	// the sequences are returned to the pool, so committed records are
	// always gap-free in commit order.
	AllocateGlobalSequences(
		ctx context.Context,
		tx *sql.Tx,
		n uint64,
	) (uint64, error)

	// SelectStreamRevision returns the current revision of a stream, which
	// is zero if the stream has no events.
	SelectStreamRevision(
		ctx context.Context,
		tx *sql.Tx,
		tenantID, streamID string,
	) (uint64, error)

	// InsertEvent saves an event record.
	//
	// It returns ErrRevisionConflict if the record's revision is already
	// occupied within its stream.
	InsertEvent(
		ctx context.Context,
		tx *sql.Tx,
		rec persistence.Record,
		env []byte,
	) error

	// SelectNextGlobalSequence returns the global sequence that will be
	// assigned to the next committed record.
	SelectNextGlobalSequence(
		ctx context.Context,
		db *sql.DB,
	) (uint64, error)

	// SelectEventsByStream selects the events of a single stream, ordered by
	// revision, beginning at fromRevision.
	SelectEventsByStream(
		ctx context.Context,
		db *sql.DB,
		tenantID, streamID string,
		fromRevision uint64,
	) (*sql.Rows, error)

	// SelectEventsAfterGlobalSequence selects up to limit events with a
	// global sequence greater than after, in global order.
	SelectEventsAfterGlobalSequence(
		ctx context.Context,
		db *sql.DB,
		after uint64,
		limit int,
	) (*sql.Rows, error)

	// ScanEvent scans the next record from a row-set produced by
	// SelectEventsByStream() or SelectEventsAfterGlobalSequence().
	//
	// The returned envelope data is not yet deserialized.
	ScanEvent(rows *sql.Rows) (persistence.Record, []byte, error)

	// UpsertSnapshot saves a snapshot, superseding any existing snapshot for
	// the same stream.
	UpsertSnapshot(
		ctx context.Context,
		db *sql.DB,
		snap persistence.Snapshot,
	) error

	// SelectSnapshot returns the live snapshot of a stream, if one exists.
	SelectSnapshot(
		ctx context.Context,
		db *sql.DB,
		tenantID, streamID string,
	) (persistence.Snapshot, bool, error)

	// InsertProcessedEvent inserts a dedup ledger entry.
	//
	// It returns false, without error, if the entry already exists.
	InsertProcessedEvent(
		ctx context.Context,
		tx *sql.Tx,
		projector, eventID, tenantID string,
		at time.Time,
	) (bool, error)

	// DeleteProcessedEventsBefore removes dedup ledger entries recorded
	// before the given time.
	DeleteProcessedEventsBefore(
		ctx context.Context,
		db *sql.DB,
		before time.Time,
	) (int64, error)

	// UpsertResource creates or updates a read-model resource.
	UpsertResource(
		ctx context.Context,
		tx *sql.Tx,
		tenantID, bucket, key string,
		value []byte,
	) error

	// DeleteResource removes a read-model resource.
	DeleteResource(
		ctx context.Context,
		tx *sql.Tx,
		tenantID, bucket, key string,
	) error

	// SelectResource returns the value of a read-model resource, if it
	// exists.
	SelectResource(
		ctx context.Context,
		db *sql.DB,
		tenantID, bucket, key string,
	) ([]byte, bool, error)

	// IsUnavailable returns true if err indicates a transient storage
	// failure that is safe to retry.
	IsUnavailable(err error) bool
}
