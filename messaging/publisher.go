package messaging

import (
	"context"
	"fmt"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/google/uuid"
)

// Publisher sends event envelopes over the transport, stamping each message
// with the meta-data that lets a consumer rebuild the calling scope.
type Publisher struct {
	// Transport is the message bus to publish on.
	Transport Transport

	// Logger is the target for log messages about published events.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger
}

// Publish sends env on the given subject.
//
// It fails with a tenant.MissingContextError if ctx does not carry a tenant
// scope; an event is never published without a tenant attribution. The
// envelope must belong to the calling tenant.
//
// If the envelope has no correlation ID a new one is generated, so a
// consumer always receives a correlation to propagate.
func (p *Publisher) Publish(
	ctx context.Context,
	subject string,
	env *envelope.Envelope,
) error {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return err
	}

	if env.TenantID != scope.TenantID {
		return fmt.Errorf(
			"envelope %s belongs to tenant %s, but the current scope is tenant %s",
			env.MessageID,
			env.TenantID,
			scope.TenantID,
		)
	}

	if err := env.Validate(); err != nil {
		return err
	}

	if env.CorrelationID == "" {
		e := *env
		e.CorrelationID = uuid.NewString()
		env = &e
	}

	if err := p.Transport.Publish(
		ctx,
		subject,
		marshalHeaders(env),
		env.Data,
	); err != nil {
		return err
	}

	logging.Debug(
		p.Logger,
		"published %s event %s for tenant %s on subject %s",
		env.EventType,
		env.MessageID,
		env.TenantID,
		subject,
	)

	return nil
}
