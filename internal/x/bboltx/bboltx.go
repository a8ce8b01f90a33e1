// Package bboltx provides low-level utilities for working with BoltDB.
package bboltx

import (
	"context"
	"os"

	"go.etcd.io/bbolt"
)

// Must panics if err is non-nil.
func Must(err error) {
	if err != nil {
		panic(PanicSentinel{err})
	}
}

// PanicSentinel is a wrapper value used to identify panics that are caused
// by the MustXXX() functions.
type PanicSentinel struct {
	// Cause is the error that caused the panic.
	Cause error
}

// Recover recovers from a panic caused by one of the MustXXX() functions.
//
// It is intended to be used in a defer statement. The error that caused the
// panic is assigned to *err.
func Recover(err *error) {
	if err == nil {
		panic("err must be a non-nil pointer")
	}

	switch v := recover().(type) {
	case PanicSentinel:
		*err = v.Cause
	case nil:
		return
	default:
		panic(v)
	}
}

// BucketParent is an interface for things that contain buckets.
type BucketParent interface {
	Bucket([]byte) *bbolt.Bucket
	CreateBucketIfNotExists([]byte) (*bbolt.Bucket, error)
}

var (
	_ BucketParent = (*bbolt.Tx)(nil)
	_ BucketParent = (*bbolt.Bucket)(nil)
)

// CreateBucketIfNotExists creates nested buckets with names given by the
// elements of path.
func CreateBucketIfNotExists(p BucketParent, path ...[]byte) *bbolt.Bucket {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	var (
		b   *bbolt.Bucket
		err error
	)

	for _, n := range path {
		b, err = p.CreateBucketIfNotExists(n)
		Must(err)

		p = b
	}

	return b
}

// Bucket gets nested buckets with names given by the elements of path.
//
// It returns nil if any of the nested buckets does not exist.
func Bucket(p BucketParent, path ...[]byte) (b *bbolt.Bucket) {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	for _, n := range path {
		b = p.Bucket(n)
		if b == nil {
			return nil
		}

		p = b
	}

	return b
}

// Put writes a value to a bucket.
func Put(b *bbolt.Bucket, k, v []byte) {
	Must(b.Put(k, v))
}

// Delete removes a value from a bucket.
func Delete(b *bbolt.Bucket, k []byte) {
	Must(b.Delete(k))
}

// BeginWrite starts a read/write transaction.
func BeginWrite(db *bbolt.DB) *bbolt.Tx {
	tx, err := db.Begin(true)
	Must(err)
	return tx
}

// Commit commits the given transaction.
func Commit(tx *bbolt.Tx) {
	Must(tx.Commit())
}

// Open creates and opens a database at the given path.
//
// If mode is zero, 0600 is used.
func Open(
	ctx context.Context,
	path string,
	mode os.FileMode,
	opts *bbolt.Options,
) (*bbolt.DB, error) {
	if mode == 0 {
		mode = 0600
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return bbolt.Open(path, mode, opts)
}
