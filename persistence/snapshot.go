package persistence

import "time"

// Snapshot is a point-in-time capture of an aggregate's state.
//
// Snapshots are an optimization only. The engine must always be able to
// rebuild an aggregate from its events alone; a snapshot may be discarded at
// any time without affecting correctness.
type Snapshot struct {
	// TenantID is the tenant that owns the snapshot.
	TenantID string

	// StreamID is the identity of the aggregate stream the snapshot
	// captures.
	StreamID string

	// Revision is the revision of the last event applied to the state.
	Revision uint64

	// State is the serialized aggregate state.
	State []byte

	// RecordedAt is the time at which the snapshot was taken, in UTC.
	RecordedAt time.Time
}
