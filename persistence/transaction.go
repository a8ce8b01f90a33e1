package persistence

import (
	"context"
	"errors"
)

// ErrTransactionClosed is returned by all methods on Transaction once the
// transaction is committed or rolled-back.
var ErrTransactionClosed = errors.New("transaction already committed or rolled-back")

// Transaction exposes the persistence operations of a projection's atomic
// dedup-and-apply cycle.
//
// Transactions are not safe for concurrent use.
type Transaction interface {
	// MarkProcessed records that an event has been processed by a projector.
	//
	// It returns false, without error, if the event has already been
	// processed by the same projector for the same tenant. Two concurrent
	// attempts to mark the same (projector, event, tenant) serialize on the
	// ledger's uniqueness guarantee; exactly one observes true.
	//
	// The ledger entry only becomes durable when the transaction commits,
	// together with any read-model writes made through the transaction.
	MarkProcessed(
		ctx context.Context,
		projector, eventID, tenantID string,
	) (bool, error)

	// SaveResource creates or updates a read-model resource.
	SaveResource(
		ctx context.Context,
		tenantID, bucket, key string,
		value []byte,
	) error

	// DeleteResource removes a read-model resource.
	DeleteResource(
		ctx context.Context,
		tenantID, bucket, key string,
	) error

	// Commit applies the changes from the transaction.
	Commit(ctx context.Context) error

	// Rollback aborts the transaction.
	Rollback() error
}

// WithTransaction executes fn inside a transaction.
//
// If fn returns nil the transaction is committed. Otherwise, the transaction
// is rolled-back and the error is returned.
func WithTransaction(
	ctx context.Context,
	ds DataStore,
	fn func(Transaction) error,
) error {
	tx, err := ds.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
