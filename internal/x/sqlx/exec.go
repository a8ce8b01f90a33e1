package sqlx

import (
	"context"
	"database/sql"
)

// Exec executes a statement on the given DB.
func Exec(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) sql.Result {
	res, err := db.ExecContext(ctx, query, args...)
	Must(err)
	return res
}

// Query executes a query on the given DB.
func Query(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) *sql.Rows {
	rows, err := db.QueryContext(ctx, query, args...)
	Must(err)
	return rows
}

// QueryInto executes a single-column, single-row query on the given DB and
// scans the result into value.
func QueryInto(
	ctx context.Context,
	db DB,
	value interface{},
	query string,
	args ...interface{},
) {
	row := db.QueryRowContext(ctx, query, args...)
	Must(row.Scan(value))
}

// TryQueryInto executes a single-column, single-row query on the given DB
// and scans the result into value.
//
// It returns false if the query produces no rows.
func TryQueryInto(
	ctx context.Context,
	db DB,
	value interface{},
	query string,
	args ...interface{},
) bool {
	row := db.QueryRowContext(ctx, query, args...)

	err := row.Scan(value)
	if err == sql.ErrNoRows {
		return false
	}

	Must(err)

	return true
}

// QueryUint64 executes a single-column, single-row query on the given DB and
// returns the result as a uint64.
func QueryUint64(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) (v uint64) {
	QueryInto(ctx, db, &v, query, args...)
	return v
}

// Begin starts a new transaction.
func Begin(ctx context.Context, db *sql.DB) *sql.Tx {
	tx, err := db.BeginTx(ctx, nil)
	Must(err)
	return tx
}

// Commit commits the given transaction.
func Commit(tx *sql.Tx) {
	Must(tx.Commit())
}
