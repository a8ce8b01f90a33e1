package boltpersistence

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/persistence"
)

var (
	// eventsBucketKey is the key of the root bucket containing each event
	// record, keyed by global sequence.
	eventsBucketKey = []byte("events")

	// streamsBucketKey is the key of the root bucket that indexes streams.
	// It contains a bucket per tenant, containing a bucket per stream, which
	// maps revisions to global sequences. All keys and values are 8-byte
	// big-endian packets.
	streamsBucketKey = []byte("streams")

	// snapshotsBucketKey is the key of the root bucket that contains a
	// bucket per tenant mapping stream IDs to snapshot documents.
	snapshotsBucketKey = []byte("snapshots")

	// ledgerBucketKey is the key of the root bucket holding the projection
	// dedup ledger. It contains a bucket per projector, containing a bucket
	// per tenant, mapping event IDs to processing timestamps.
	ledgerBucketKey = []byte("ledger")

	// resourcesBucketKey is the key of the root bucket holding read-model
	// resources, a bucket per tenant containing a bucket per resource
	// bucket.
	resourcesBucketKey = []byte("resources")
)

// recordDocument is the JSON representation of a record within the events
// bucket.
type recordDocument struct {
	TenantID string          `json:"tenant_id"`
	StreamID string          `json:"stream_id"`
	Revision uint64          `json:"revision"`
	Envelope json.RawMessage `json:"envelope"`
}

// snapshotDocument is the JSON representation of a snapshot.
type snapshotDocument struct {
	Revision   uint64    `json:"revision"`
	State      []byte    `json:"state"`
	RecordedAt time.Time `json:"recorded_at"`
}

func marshalUint64(n uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, n)
	return data
}

func unmarshalUint64(data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}

	return binary.BigEndian.Uint64(data)
}

// marshalSnapshot returns the serialized representation of snap.
func marshalSnapshot(snap persistence.Snapshot) ([]byte, error) {
	return json.Marshal(snapshotDocument{
		Revision:   snap.Revision,
		State:      snap.State,
		RecordedAt: snap.RecordedAt,
	})
}

// unmarshalSnapshot parses a snapshot belonging to the given stream.
func unmarshalSnapshot(
	tenantID, streamID string,
	data []byte,
) (persistence.Snapshot, error) {
	var doc snapshotDocument

	if err := json.Unmarshal(data, &doc); err != nil {
		return persistence.Snapshot{}, err
	}

	return persistence.Snapshot{
		TenantID:   tenantID,
		StreamID:   streamID,
		Revision:   doc.Revision,
		State:      doc.State,
		RecordedAt: doc.RecordedAt,
	}, nil
}

// marshalRecord returns the serialized representation of rec.
func marshalRecord(rec persistence.Record) ([]byte, error) {
	env, err := envelope.Marshal(rec.Envelope)
	if err != nil {
		return nil, err
	}

	return json.Marshal(recordDocument{
		TenantID: rec.TenantID,
		StreamID: rec.StreamID,
		Revision: rec.Revision,
		Envelope: env,
	})
}

// unmarshalRecord parses a record stored at the given global sequence.
//
// It returns a persistence.CorruptEventError if the record or its envelope
// can not be deserialized.
func unmarshalRecord(gseq uint64, data []byte) (persistence.Record, error) {
	var doc recordDocument

	if err := json.Unmarshal(data, &doc); err != nil {
		return persistence.Record{}, persistence.CorruptEventError{
			GlobalSequence: gseq,
			Cause:          err,
		}
	}

	env, err := envelope.Unmarshal(doc.Envelope)
	if err != nil {
		return persistence.Record{}, persistence.CorruptEventError{
			TenantID:       doc.TenantID,
			StreamID:       doc.StreamID,
			GlobalSequence: gseq,
			Cause:          err,
		}
	}

	return persistence.Record{
		TenantID:       doc.TenantID,
		StreamID:       doc.StreamID,
		Revision:       doc.Revision,
		GlobalSequence: gseq,
		Envelope:       env,
	}, nil
}
