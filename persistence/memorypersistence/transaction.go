package memorypersistence

import (
	"context"
	"time"

	"github.com/Broccode/acci-eaf-sub000/persistence"
)

type resourceOp struct {
	key    resourceKey
	value  []byte
	delete bool
}

// transaction buffers a projection's writes until commit.
//
// MarkProcessed places a claim on the ledger key immediately so that
// competing transactions for the same event block until this transaction
// resolves, mirroring the row-lock behaviour of a relational unique index.
type transaction struct {
	ds        *dataStore
	claims    []ledgerKey
	resources []resourceOp
	done      bool
}

func (t *transaction) MarkProcessed(
	ctx context.Context,
	projector, eventID, tenantID string,
) (bool, error) {
	if err := t.guard(ctx); err != nil {
		return false, err
	}

	k := ledgerKey{projector, eventID, tenantID}
	db := t.ds.db

	for {
		db.m.Lock()

		if _, ok := db.ledger[k]; ok {
			db.m.Unlock()
			return false, nil
		}

		if c, ok := db.claims[k]; ok {
			// Another in-flight transaction holds the claim. Wait for it to
			// commit or roll back, then look again.
			db.m.Unlock()

			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-t.ds.closed:
				return false, persistence.ErrDataStoreClosed
			case <-c.done:
			}

			continue
		}

		db.claims[k] = &claim{done: make(chan struct{})}
		db.m.Unlock()

		t.claims = append(t.claims, k)

		return true, nil
	}
}

func (t *transaction) SaveResource(
	ctx context.Context,
	tenantID, bucket, key string,
	value []byte,
) error {
	if err := t.guard(ctx); err != nil {
		return err
	}

	v := make([]byte, len(value))
	copy(v, value)

	t.resources = append(t.resources, resourceOp{
		key:   resourceKey{tenantID, bucket, key},
		value: v,
	})

	return nil
}

func (t *transaction) DeleteResource(
	ctx context.Context,
	tenantID, bucket, key string,
) error {
	if err := t.guard(ctx); err != nil {
		return err
	}

	t.resources = append(t.resources, resourceOp{
		key:    resourceKey{tenantID, bucket, key},
		delete: true,
	})

	return nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if err := t.guard(ctx); err != nil {
		return err
	}

	t.done = true

	db := t.ds.db
	db.m.Lock()
	defer db.m.Unlock()

	now := time.Now()
	for _, k := range t.claims {
		db.ledger[k] = now
	}

	for _, op := range t.resources {
		if op.delete {
			delete(db.resources, op.key)
		} else {
			db.resources[op.key] = op.value
		}
	}

	t.release(db)

	return nil
}

func (t *transaction) Rollback() error {
	if t.done {
		return persistence.ErrTransactionClosed
	}

	t.done = true

	db := t.ds.db
	db.m.Lock()
	defer db.m.Unlock()

	t.release(db)

	return nil
}

// release removes the transaction's claims and wakes any transactions
// waiting on them.
//
// It must be called while holding db.m.
func (t *transaction) release(db *database) {
	for _, k := range t.claims {
		if c, ok := db.claims[k]; ok {
			delete(db.claims, k)
			close(c.done)
		}
	}

	t.claims = nil
	t.resources = nil
}

func (t *transaction) guard(ctx context.Context) error {
	if t.done {
		return persistence.ErrTransactionClosed
	}

	return t.ds.guard(ctx)
}
