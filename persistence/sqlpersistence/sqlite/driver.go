// Package sqlite provides an implementation of the SQL persistence driver
// for SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Broccode/acci-eaf-sub000/internal/x/sqlx"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/sqlpersistence"
	"github.com/mattn/go-sqlite3"
)

// Driver is an implementation of sqlpersistence.Driver for SQLite.
type Driver struct{}

// IsCompatibleWith returns nil if this driver can be used with db.
func (Driver) IsCompatibleWith(ctx context.Context, db *sql.DB) error {
	// Verify that the database is actually SQLite by invoking a function
	// that is not available in other dialects.
	_, err := db.ExecContext(ctx, `SELECT sqlite_version()`)
	return err
}

// Begin starts a transaction.
func (Driver) Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	return db.BeginTx(ctx, nil)
}

// AllocateGlobalSequences reserves n global sequences within tx.
func (Driver) AllocateGlobalSequences(
	ctx context.Context,
	tx *sql.Tx,
	n uint64,
) (_ uint64, err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		tx,
		`UPDATE global_sequence SET
			next = next + ?
		WHERE id = 1`,
		n,
	)

	next := sqlx.QueryUint64(
		ctx,
		tx,
		`SELECT next FROM global_sequence WHERE id = 1`,
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
		WHERE tenant_id = ?
		AND stream_id = ?`,
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
			?, ?, ?, ?, ?, ?, ?, ?
		) ON CONFLICT (tenant_id, stream_id, revision) DO NOTHING`,
		rec.GlobalSequence,
		rec.TenantID,
		rec.StreamID,
		rec.Revision,
		rec.Envelope.MessageID,
		rec.Envelope.EventType,
		env,
		rec.Envelope.CreatedAt.Format(time.RFC3339Nano),
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
		WHERE tenant_id = ?
		AND stream_id = ?
		AND revision >= ?
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
		WHERE global_sequence > ?
		ORDER BY global_sequence
		LIMIT ?`,
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
			?, ?, ?, ?, ?
		) ON CONFLICT (tenant_id, stream_id) DO UPDATE SET
			revision = excluded.revision,
			state = excluded.state,
			recorded_at = excluded.recorded_at`,
		snap.TenantID,
		snap.StreamID,
		snap.Revision,
		snap.State,
		snap.RecordedAt.Format(time.RFC3339Nano),
	)

	return nil
}

// SelectSnapshot returns the live snapshot of a stream, if one exists.
func (Driver) SelectSnapshot(
	ctx context.Context,
	db *sql.DB,
	tenantID, streamID string,
) (_ persistence.Snapshot, _ bool, err error) {
	defer sqlx.Recover(&err)

	snap := persistence.Snapshot{
		TenantID: tenantID,
		StreamID: streamID,
	}

	var recordedAt string

	row := db.QueryRowContext(
		ctx,
		`SELECT
			revision,
			state,
			recorded_at
		FROM snapshots
		WHERE tenant_id = ?
		AND stream_id = ?`,
		tenantID,
		streamID,
	)

	if err := row.Scan(&snap.Revision, &snap.State, &recordedAt); err != nil {
		if err == sql.ErrNoRows {
			return persistence.Snapshot{}, false, nil
		}

		return persistence.Snapshot{}, false, err
	}

	snap.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)

	return snap, true, err
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
			?, ?, ?, ?
		) ON CONFLICT (projector_name, event_id, tenant_id) DO NOTHING`,
		projector,
		eventID,
		tenantID,
		at.Format(time.RFC3339Nano),
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
		`DELETE FROM processed_events WHERE processed_at < ?`,
		before.UTC().Format(time.RFC3339Nano),
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
			?, ?, ?, ?
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
		WHERE tenant_id = ?
		AND bucket = ?
		AND k = ?`,
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
		WHERE tenant_id = ?
		AND bucket = ?
		AND k = ?`,
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
	var e sqlite3.Error

	if errors.As(err, &e) {
		return e.Code == sqlite3.ErrBusy || e.Code == sqlite3.ErrLocked
	}

	return false
}
