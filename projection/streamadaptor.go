package projection

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	"github.com/dogmatiq/dodeca/logging"
)

const (
	// offsetTenantID is the reserved tenant that owns the engine's own
	// bookkeeping resources. It never collides with application tenants,
	// whose IDs are validated to be non-empty application identifiers.
	offsetTenantID = "@engine"

	// offsetBucket is the resource bucket holding each projector's stream
	// position.
	offsetBucket = "projection-offsets"
)

// StreamAdaptor presents a projection handler as an eventstream.Handler,
// allowing a projector to be driven directly from the event store's global
// stream instead of the message bus.
//
// The projector's stream position is stored as a resource in the same
// transaction as its ledger entry and read-model writes, so a crash never
// leaves the position ahead of the read-model. Events replayed after a crash
// are absorbed by the ledger.
type StreamAdaptor struct {
	// Handler is the projector to drive.
	Handler Handler

	// EventTypes limits the projector to events of the named types. If it is
	// empty the projector is presented with every event. Filtered events
	// still advance the stored offset.
	EventTypes []string

	// DataStore is the persistence backend.
	DataStore persistence.DataStore

	// Logger is the target for log messages about the projector's progress.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger
}

// NextToken returns the position at which consumption should begin or
// resume, loaded from the projector's offset resource.
func (a *StreamAdaptor) NextToken(
	ctx context.Context,
) (eventstream.Token, error) {
	data, ok, err := a.DataStore.LoadResource(
		ctx,
		offsetTenantID,
		offsetBucket,
		a.Handler.Name(),
	)
	if err != nil {
		return eventstream.Token{}, err
	}

	if !ok {
		return eventstream.TailToken(), nil
	}

	var tok eventstream.Token
	if err := tok.UnmarshalText(data); err != nil {
		return eventstream.Token{}, err
	}

	return tok, nil
}

// HandleEvent presents an event from the stream to the projector and
// advances the stored offset, in one transaction.
func (a *StreamAdaptor) HandleEvent(
	ctx context.Context,
	_ eventstream.Token,
	ev eventstream.Event,
) error {
	env := ev.Envelope

	scope := tenant.Scope{
		TenantID:      env.TenantID,
		UserID:        env.UserID,
		CorrelationID: env.CorrelationID,
	}

	return persistence.WithTransaction(
		ctx,
		a.DataStore,
		func(tx persistence.Transaction) error {
			ok, err := tx.MarkProcessed(
				ctx,
				a.Handler.Name(),
				env.MessageID,
				env.TenantID,
			)
			if err != nil {
				return err
			}

			if ok && a.accepts(env.EventType) {
				if err := a.Handler.HandleEvent(
					tenant.With(ctx, scope),
					tx,
					env,
				); err != nil {
					return HandlerFailure{
						Projector: a.Handler.Name(),
						MessageID: env.MessageID,
						Cause:     err,
					}
				}
			} else if !ok {
				logging.Debug(
					a.Logger,
					"projector %s has already processed event %s for tenant %s",
					a.Handler.Name(),
					env.MessageID,
					env.TenantID,
				)
			}

			data, err := ev.Token.MarshalText()
			if err != nil {
				return err
			}

			return tx.SaveResource(
				ctx,
				offsetTenantID,
				offsetBucket,
				a.Handler.Name(),
				data,
			)
		},
	)
}

func (a *StreamAdaptor) accepts(eventType string) bool {
	if len(a.EventTypes) == 0 {
		return true
	}

	for _, t := range a.EventTypes {
		if t == eventType {
			return true
		}
	}

	return false
}
