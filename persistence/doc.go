// Package persistence defines the contract between the storage engine and
// the backing stores that provide durable, tenant-scoped, totally-ordered
// event storage.
package persistence
