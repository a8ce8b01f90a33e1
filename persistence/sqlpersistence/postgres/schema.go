package postgres

import (
	"context"
	"database/sql"

	"github.com/Broccode/acci-eaf-sub000/internal/x/sqlx"
)

// CreateSchema creates the SQL schema elements required by the driver.
func (Driver) CreateSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	tx := sqlx.Begin(ctx, db)
	defer tx.Rollback()

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS event_records (
			global_sequence BIGINT NOT NULL PRIMARY KEY,
			tenant_id       TEXT NOT NULL,
			stream_id       TEXT NOT NULL,
			revision        BIGINT NOT NULL,
			message_id      TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			envelope        BYTEA NOT NULL,
			recorded_at     TIMESTAMPTZ NOT NULL,

			UNIQUE (tenant_id, stream_id, revision)
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS global_sequence (
			id   INTEGER NOT NULL PRIMARY KEY CHECK (id = 1),
			next BIGINT NOT NULL
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`INSERT INTO global_sequence (id, next)
		VALUES (1, 1)
		ON CONFLICT (id) DO NOTHING`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tenant_id   TEXT NOT NULL,
			stream_id   TEXT NOT NULL,
			revision    BIGINT NOT NULL,
			state       BYTEA NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,

			PRIMARY KEY (tenant_id, stream_id)
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS processed_events (
			projector_name TEXT NOT NULL,
			event_id       TEXT NOT NULL,
			tenant_id      TEXT NOT NULL,
			processed_at   TIMESTAMPTZ NOT NULL,

			PRIMARY KEY (projector_name, event_id, tenant_id)
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS projection_resources (
			tenant_id TEXT NOT NULL,
			bucket    TEXT NOT NULL,
			k         TEXT NOT NULL,
			value     BYTEA NOT NULL,

			PRIMARY KEY (tenant_id, bucket, k)
		)`,
	)

	sqlx.Commit(tx)

	return nil
}

// DropSchema removes the SQL schema elements created by CreateSchema().
func (Driver) DropSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS event_records`)
	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS global_sequence`)
	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS snapshots`)
	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS processed_events`)
	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS projection_resources`)

	return nil
}
