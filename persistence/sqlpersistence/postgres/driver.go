// Package postgres provides an implementation of the SQL persistence driver
// for PostgreSQL.
//
// It is compatible with any database/sql driver for PostgreSQL, including
// github.com/lib/pq and github.com/jackc/pgx's stdlib adapter.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"time"

	"github.com/Broccode/acci-eaf-sub000/internal/x/sqlx"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/sqlpersistence"
)

// Driver is an implementation of sqlpersistence.Driver for PostgreSQL.
type Driver struct{}

// IsCompatibleWith returns nil if this driver can be used with db.
func (Driver) IsCompatibleWith(ctx context.Context, db *sql.DB) error {
	// Verify that the database is actually PostgreSQL by casting to a type
	// that only it supports.
	_, err := db.ExecContext(ctx, `SELECT pg_backend_pid()`)
	return err
}

// Begin starts a transaction.
func (Driver) Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	return db.BeginTx(ctx, nil)
}

// AllocateGlobalSequences reserves n global sequences within tx.
//
// The counter row remains locked until the transaction resolves, which is
// what guarantees that commit order matches allocation order and that the
// committed global sequence is gap-free.
func (Driver) AllocateGlobalSequences(
	ctx context.Context,
	tx *sql.Tx,
	n uint64,
) (_ uint64, err error) {
	defer sqlx.Recover(&err)

	next := sqlx.QueryUint64(
		ctx,
		tx,
		`UPDATE global_sequence SET
			next = next + $1
		WHERE id = 1
		RETURNING next`,
		n,
	)

	return next - n, nil
}

// SelectStreamRevision returns the current revision of a stream.
func (Driver) SelectStreamRevision(
	ctx context.Context,
	tx *sql.Tx,
	tenantID, streamID string,
) (_ uint64, err error) {
	defer sqlx.Recover(&err)

	return sqlx.QueryUint64(
		ctx,
		tx,
		`SELECT COALESCE(MAX(revision), 0)
		FROM event_records
		WHERE tenant_id = $1
		AND stream_id = $2`,
		tenantID,
		streamID,
	), nil
}

// InsertEvent saves an event record.
func (Driver) InsertEvent(
	ctx context.Context,
	tx *sql.Tx,
	rec persistence.Record,
	env []byte,
) (err error) {
	defer sqlx.Recover(&err)

	res := sqlx.Exec(
		ctx,
		tx,
		`INSERT INTO event_records (
			global_sequence,
			tenant_id,
			stream_id,
			revision,
			message_id,
			event_type,
			envelope,
			recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		) ON CONFLICT (tenant_id, stream_id, revision) DO NOTHING`,
		rec.GlobalSequence,
		rec.TenantID,
		rec.StreamID,
		rec.Revision,
		rec.Envelope.MessageID,
		rec.Envelope.EventType,
		env,
		rec.Envelope.CreatedAt,
	)

	n, err := res.RowsAffected()
	sqlx.Must(err)

	if n == 0 {
		return sqlpersistence.ErrRevisionConflict
	}

	return nil
}

// SelectNextGlobalSequence returns the global sequence that will be assigned
// to the next committed record.
func (Driver) SelectNextGlobalSequence(
	ctx context.Context,
	db *sql.DB,
) (_ uint64, err error) {
	defer sqlx.Recover(&err)

	return sqlx.QueryUint64(
		ctx,
		db,
		`SELECT next FROM global_sequence WHERE id = 1`,
	), nil
}

// SelectEventsByStream selects the events of a single stream.
func (Driver) SelectEventsByStream(
	ctx context.Context,
	db *sql.DB,
	tenantID, streamID string,
	fromRevision uint64,
) (*sql.Rows, error) {
	return db.QueryContext(
		ctx,
		`SELECT
			global_sequence,
			tenant_id,
			stream_id,
			revision,
			envelope
		FROM event_records
		WHERE tenant_id = $1
		AND stream_id = $2
		AND revision >= $3
		ORDER BY revision`,
		tenantID,
		streamID,
		fromRevision,
	)
}

// SelectEventsAfterGlobalSequence selects up to limit events with a global
// sequence greater than after.
func (Driver) SelectEventsAfterGlobalSequence(
	ctx context.Context,
	db *sql.DB,
	after uint64,
	limit int,
) (*sql.Rows, error) {
	return db.QueryContext(
		ctx,
		`SELECT
			global_sequence,
			tenant_id,
			stream_id,
			revision,
			envelope
		FROM event_records
		WHERE global_sequence > $1
		ORDER BY global_sequence
		LIMIT $2`,
		after,
		limit,
	)
}

// ScanEvent scans the next record from a row-set.
func (Driver) ScanEvent(
	rows *sql.Rows,
) (persistence.Record, []byte, error) {
	var (
		rec persistence.Record
		env []byte
	)

	err := rows.Scan(
		&rec.GlobalSequence,
		&rec.TenantID,
		&rec.StreamID,
		&rec.Revision,
		&env,
	)

	return rec, env, err
}

// UpsertSnapshot saves a snapshot, superseding any existing snapshot for the
// same stream.
func (Driver) UpsertSnapshot(
	ctx context.Context,
	db *sql.DB,
	snap persistence.Snapshot,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		`INSERT INTO snapshots (
			tenant_id,
			stream_id,
			revision,
			state,
			recorded_at
		) VALUES (
			$1, $2, $3, $4, $5
		) ON CONFLICT (tenant_id, stream_id) DO UPDATE SET
			revision = excluded.revision,
			state = excluded.state,
			recorded_at = excluded.recorded_at`,
		snap.TenantID,
		snap.StreamID,
		snap.Revision,
		snap.State,
		snap.RecordedAt,
	)

	return nil
}

// SelectSnapshot returns the live snapshot of a stream, if one exists.
func (Driver) SelectSnapshot(
	ctx context.Context,
	db *sql.DB,
	tenantID, streamID string,
) (persistence.Snapshot, bool, error) {
	snap := persistence.Snapshot{
		TenantID: tenantID,
		StreamID: streamID,
	}

	row := db.QueryRowContext(
		ctx,
		`SELECT
			revision,
			state,
			recorded_at
		FROM snapshots
		WHERE tenant_id = $1
		AND stream_id = $2`,
		tenantID,
		streamID,
	)

	if err := row.Scan(&snap.Revision, &snap.State, &snap.RecordedAt); err != nil {
		if err == sql.ErrNoRows {
			return persistence.Snapshot{}, false, nil
		}

		return persistence.Snapshot{}, false, err
	}

	return snap, true, nil
}

// InsertProcessedEvent inserts a dedup ledger entry.
func (Driver) InsertProcessedEvent(
	ctx context.Context,
	tx *sql.Tx,
	projector, eventID, tenantID string,
	at time.Time,
) (_ bool, err error) {
	defer sqlx.Recover(&err)

	res := sqlx.Exec(
		ctx,
		tx,
		`INSERT INTO processed_events (
			projector_name,
			event_id,
			tenant_id,
			processed_at
		) VALUES (
			$1, $2, $3, $4
		) ON CONFLICT (projector_name, event_id, tenant_id) DO NOTHING`,
		projector,
		eventID,
		tenantID,
		at,
	)

	n, err := res.RowsAffected()
	sqlx.Must(err)

	return n != 0, nil
}

// DeleteProcessedEventsBefore removes dedup ledger entries recorded before
// the given time.
func (Driver) DeleteProcessedEventsBefore(
	ctx context.Context,
	db *sql.DB,
	before time.Time,
) (_ int64, err error) {
	defer sqlx.Recover(&err)

	res := sqlx.Exec(
		ctx,
		db,
		`DELETE FROM processed_events WHERE processed_at < $1`,
		before,
	)

	n, err := res.RowsAffected()
	sqlx.Must(err)

	return n, nil
}

// UpsertResource creates or updates a read-model resource.
func (Driver) UpsertResource(
	ctx context.Context,
	tx *sql.Tx,
	tenantID, bucket, key string,
	value []byte,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		tx,
		`INSERT INTO projection_resources (
			tenant_id,
			bucket,
			k,
			value
		) VALUES (
			$1, $2, $3, $4
		) ON CONFLICT (tenant_id, bucket, k) DO UPDATE SET
			value = excluded.value`,
		tenantID,
		bucket,
		key,
		value,
	)

	return nil
}

// DeleteResource removes a read-model resource.
func (Driver) DeleteResource(
	ctx context.Context,
	tx *sql.Tx,
	tenantID, bucket, key string,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		tx,
		`DELETE FROM projection_resources
		WHERE tenant_id = $1
		AND bucket = $2
		AND k = $3`,
		tenantID,
		bucket,
		key,
	)

	return nil
}

// SelectResource returns the value of a read-model resource, if it exists.
func (Driver) SelectResource(
	ctx context.Context,
	db *sql.DB,
	tenantID, bucket, key string,
) ([]byte, bool, error) {
	var value []byte

	row := db.QueryRowContext(
		ctx,
		`SELECT value FROM projection_resources
		WHERE tenant_id = $1
		AND bucket = $2
		AND k = $3`,
		tenantID,
		bucket,
		key,
	)

	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}

		return nil, false, err
	}

	return value, true, nil
}

// IsUnavailable returns true if err indicates a transient storage failure.
func (Driver) IsUnavailable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
