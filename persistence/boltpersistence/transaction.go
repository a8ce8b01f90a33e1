package boltpersistence

import (
	"context"
	"time"

	"github.com/Broccode/acci-eaf-sub000/internal/x/bboltx"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"go.etcd.io/bbolt"
)

// transaction is an implementation of persistence.Transaction that wraps a
// BoltDB read/write transaction.
//
// BoltDB permits a single writer, so concurrent projection attempts for the
// same event serialize on the database's writer lock; the loser observes the
// winner's ledger entry when its own transaction begins.
type transaction struct {
	ds     *dataStore
	actual *bbolt.Tx
	done   bool
}

func (t *transaction) MarkProcessed(
	ctx context.Context,
	projector, eventID, tenantID string,
) (_ bool, err error) {
	defer bboltx.Recover(&err)

	if err := t.guard(ctx); err != nil {
		return false, err
	}

	b := bboltx.CreateBucketIfNotExists(
		t.actual,
		ledgerBucketKey,
		[]byte(projector),
		[]byte(tenantID),
	)

	k := []byte(eventID)

	if b.Get(k) != nil {
		return false, nil
	}

	bboltx.Put(
		b,
		k,
		[]byte(time.Now().UTC().Format(time.RFC3339Nano)),
	)

	return true, nil
}

func (t *transaction) SaveResource(
	ctx context.Context,
	tenantID, bucket, key string,
	value []byte,
) (err error) {
	defer bboltx.Recover(&err)

	if err := t.guard(ctx); err != nil {
		return err
	}

	b := bboltx.CreateBucketIfNotExists(
		t.actual,
		resourcesBucketKey,
		[]byte(tenantID),
		[]byte(bucket),
	)

	bboltx.Put(b, []byte(key), value)

	return nil
}

func (t *transaction) DeleteResource(
	ctx context.Context,
	tenantID, bucket, key string,
) (err error) {
	defer bboltx.Recover(&err)

	if err := t.guard(ctx); err != nil {
		return err
	}

	b := bboltx.Bucket(
		t.actual,
		resourcesBucketKey,
		[]byte(tenantID),
		[]byte(bucket),
	)

	if b != nil {
		bboltx.Delete(b, []byte(key))
	}

	return nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if err := t.guard(ctx); err != nil {
		return err
	}

	t.done = true

	return t.actual.Commit()
}

func (t *transaction) Rollback() error {
	if t.done {
		return persistence.ErrTransactionClosed
	}

	t.done = true

	return t.actual.Rollback()
}

func (t *transaction) guard(ctx context.Context) error {
	if t.done {
		return persistence.ErrTransactionClosed
	}

	return t.ds.guard(ctx)
}

// pruneLedger removes ledger entries recorded before the given time,
// returning the number of entries removed.
func pruneLedger(ledger *bbolt.Bucket, before time.Time) int64 {
	var n int64

	projectors := ledger.Cursor()

	for pk, pv := projectors.First(); pk != nil; pk, pv = projectors.Next() {
		if pv != nil {
			continue
		}

		tenants := ledger.Bucket(pk).Cursor()

		for tk, tv := tenants.First(); tk != nil; tk, tv = tenants.Next() {
			if tv != nil {
				continue
			}

			entries := ledger.Bucket(pk).Bucket(tk)

			var stale [][]byte

			cur := entries.Cursor()
			for k, v := cur.First(); k != nil; k, v = cur.Next() {
				at, err := time.Parse(time.RFC3339Nano, string(v))
				if err != nil || at.Before(before) {
					stale = append(stale, append([]byte(nil), k...))
				}
			}

			for _, k := range stale {
				bboltx.Delete(entries, k)
				n++
			}
		}
	}

	return n
}
