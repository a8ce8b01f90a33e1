package envelope

import (
	"errors"
	"time"
)

// Envelope is a container for an event and its meta-data.
//
// Envelopes are immutable once packed. The event payload is opaque to the
// engine; it is stored and transported verbatim.
type Envelope struct {
	// MessageID uniquely identifies the message within the entire system.
	MessageID string `json:"message_id"`

	// CorrelationID is the ID of the "root" message that entered the system
	// and ultimately caused this message to be produced.
	CorrelationID string `json:"correlation_id"`

	// CausationID is the ID of the message that directly caused this message
	// to be produced.
	CausationID string `json:"causation_id"`

	// TenantID is the tenant that owns the event.
	TenantID string `json:"tenant_id"`

	// UserID is the user on whose behalf the event was produced, if known.
	UserID string `json:"user_id,omitempty"`

	// EventType is the portable name of the event.
	EventType string `json:"event_type"`

	// Data is the serialized event payload.
	Data []byte `json:"data"`

	// CreatedAt is the time at which the envelope was packed, in UTC.
	CreatedAt time.Time `json:"created_at"`
}

// Validate returns an error if env is not well-formed.
func (env *Envelope) Validate() error {
	if env.MessageID == "" {
		return errors.New("envelope has an empty message ID")
	}

	if env.TenantID == "" {
		return errors.New("envelope has an empty tenant ID")
	}

	if env.EventType == "" {
		return errors.New("envelope has an empty event type")
	}

	return nil
}
