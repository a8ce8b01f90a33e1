package envelope

import (
	"context"
	"time"

	"github.com/Broccode/acci-eaf-sub000/tenant"
	"github.com/google/uuid"
)

// Packer puts events into envelopes.
//
// The tenant and user are always taken from the tenant scope on the caller's
// context, never from the packer itself, so a single packer is safe to share
// across units of work for different tenants.
type Packer struct {
	// GenerateID is a function used to generate new message IDs. If it is
	// nil, a UUID is generated.
	GenerateID func() string

	// Now is a function used to get the current time. If it is nil,
	// time.Now() is used.
	Now func() time.Time
}

// Pack returns an envelope containing the given event.
//
// It returns a tenant.MissingContextError if ctx does not carry a tenant
// scope. If the scope has no correlation ID, the new message's ID is used,
// making it the root of its own correlation tree.
func (p *Packer) Pack(
	ctx context.Context,
	eventType string,
	data []byte,
) (*Envelope, error) {
	s, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}

	env := p.new(s, eventType, data)

	env.CausationID = env.MessageID
	env.CorrelationID = s.CorrelationID
	if env.CorrelationID == "" {
		env.CorrelationID = env.MessageID
	}

	return env, nil
}

// PackChild returns an envelope containing the given event, recorded as
// having been caused by the message in cause.
//
// The child inherits the cause's tenant and correlation ID regardless of the
// scope on ctx.
func (p *Packer) PackChild(
	cause *Envelope,
	eventType string,
	data []byte,
) *Envelope {
	env := p.new(
		tenant.Scope{
			TenantID: cause.TenantID,
			UserID:   cause.UserID,
		},
		eventType,
		data,
	)

	env.CausationID = cause.MessageID
	env.CorrelationID = cause.CorrelationID

	return env
}

func (p *Packer) new(
	s tenant.Scope,
	eventType string,
	data []byte,
) *Envelope {
	return &Envelope{
		MessageID: p.generateID(),
		TenantID:  s.TenantID,
		UserID:    s.UserID,
		EventType: eventType,
		Data:      data,
		CreatedAt: p.now(),
	}
}

func (p *Packer) generateID() string {
	if p.GenerateID != nil {
		return p.GenerateID()
	}

	return uuid.NewString()
}

func (p *Packer) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}

	return time.Now().UTC()
}
