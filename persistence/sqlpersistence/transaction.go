package sqlpersistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/Broccode/acci-eaf-sub000/persistence"
)

// transaction is an implementation of persistence.Transaction that wraps a
// native SQL transaction.
//
// The dedup ledger insert and any read-model writes share the transaction,
// so they become durable together or not at all.
type transaction struct {
	ds     *dataStore
	actual *sql.Tx
	done   bool
}

func (t *transaction) MarkProcessed(
	ctx context.Context,
	projector, eventID, tenantID string,
) (bool, error) {
	if err := t.guard(ctx); err != nil {
		return false, err
	}

	ok, err := t.ds.driver.InsertProcessedEvent(
		ctx,
		t.actual,
		projector,
		eventID,
		tenantID,
		time.Now().UTC(),
	)

	return ok, t.ds.translate(err)
}

func (t *transaction) SaveResource(
	ctx context.Context,
	tenantID, bucket, key string,
	value []byte,
) error {
	if err := t.guard(ctx); err != nil {
		return err
	}

	return t.ds.translate(
		t.ds.driver.UpsertResource(ctx, t.actual, tenantID, bucket, key, value),
	)
}

func (t *transaction) DeleteResource(
	ctx context.Context,
	tenantID, bucket, key string,
) error {
	if err := t.guard(ctx); err != nil {
		return err
	}

	return t.ds.translate(
		t.ds.driver.DeleteResource(ctx, t.actual, tenantID, bucket, key),
	)
}

func (t *transaction) Commit(ctx context.Context) error {
	if err := t.guard(ctx); err != nil {
		return err
	}

	t.done = true

	return t.ds.translate(t.actual.Commit())
}

func (t *transaction) Rollback() error {
	if t.done {
		return persistence.ErrTransactionClosed
	}

	t.done = true

	return t.ds.translate(t.actual.Rollback())
}

func (t *transaction) guard(ctx context.Context) error {
	if t.done {
		return persistence.ErrTransactionClosed
	}

	return t.ds.guard(ctx)
}
