package messaging

import (
	"fmt"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
)

// The transport-level header names used to carry event meta-data across the
// message bus.
const (
	// TenantIDHeader carries the ID of the tenant the message belongs to.
	TenantIDHeader = "tenant-id"

	// UserIDHeader carries the ID of the user that caused the message, if
	// known.
	UserIDHeader = "user-id"

	// CorrelationIDHeader carries the ID of the root message of the causal
	// chain the message belongs to.
	CorrelationIDHeader = "correlation-id"

	// CausationIDHeader carries the ID of the message that directly caused
	// this one.
	CausationIDHeader = "causation-id"

	// MessageIDHeader carries the message's unique ID.
	MessageIDHeader = "message-id"

	// EventTypeHeader carries the fully-qualified name of the event type.
	EventTypeHeader = "event-type"

	// CreatedAtHeader carries the time the message was created, in RFC 3339
	// format.
	CreatedAtHeader = "created-at"
)

// marshalHeaders returns the transport headers that carry env's meta-data.
//
// The message payload itself carries only the event data; everything a
// consumer needs to rebuild the envelope travels in the headers.
func marshalHeaders(env *envelope.Envelope) map[string]string {
	h := map[string]string{
		TenantIDHeader:      env.TenantID,
		CorrelationIDHeader: env.CorrelationID,
		MessageIDHeader:     env.MessageID,
		EventTypeHeader:     env.EventType,
		CreatedAtHeader:     env.CreatedAt.Format(time.RFC3339Nano),
	}

	if env.UserID != "" {
		h[UserIDHeader] = env.UserID
	}

	if env.CausationID != "" {
		h[CausationIDHeader] = env.CausationID
	}

	return h
}

// unmarshalDelivery rebuilds an envelope from a delivery's headers and
// payload.
func unmarshalDelivery(d Delivery) (*envelope.Envelope, error) {
	env := &envelope.Envelope{
		MessageID:     d.Headers[MessageIDHeader],
		CorrelationID: d.Headers[CorrelationIDHeader],
		CausationID:   d.Headers[CausationIDHeader],
		TenantID:      d.Headers[TenantIDHeader],
		UserID:        d.Headers[UserIDHeader],
		EventType:     d.Headers[EventTypeHeader],
		Data:          d.Payload,
	}

	if v, ok := d.Headers[CreatedAtHeader]; ok {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf(
				"message has a malformed %s header: %w",
				CreatedAtHeader,
				err,
			)
		}

		env.CreatedAt = at
	}

	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("message headers are incomplete: %w", err)
	}

	return env, nil
}
