// Package fixtures contains test fixtures and stub implementations of the
// engine's interfaces.
package fixtures

import (
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/google/uuid"
)

// DefaultTenantID is the tenant used by tests that do not exercise
// multi-tenancy explicitly.
const DefaultTenantID = "tenant-a"

// NewEnvelope returns a new envelope with the given event type and payload,
// belonging to the given tenant.
func NewEnvelope(tenantID, eventType string, data []byte) *envelope.Envelope {
	return &envelope.Envelope{
		MessageID:     uuid.NewString(),
		CorrelationID: uuid.NewString(),
		TenantID:      tenantID,
		EventType:     eventType,
		Data:          data,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewEnvelopes returns n new envelopes of the given event type, belonging to
// the given tenant.
func NewEnvelopes(tenantID, eventType string, n int) []*envelope.Envelope {
	envelopes := make([]*envelope.Envelope, n)

	for i := range envelopes {
		envelopes[i] = NewEnvelope(tenantID, eventType, []byte(`{}`))
	}

	return envelopes
}
