package eaf

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/messaging"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	"github.com/dogmatiq/dodeca/logging"
)

const (
	// relayTenantID is the reserved tenant that owns the relay's bookkeeping
	// resources.
	relayTenantID = "@engine"

	// relayBucket is the resource bucket holding the relay's stream
	// position.
	relayBucket = "relay-offsets"

	// relayKey is the key of the relay's stream position within relayBucket.
	relayKey = "global"
)

// relay publishes committed events from the global stream onto the
// transport, implementing eventstream.Handler.
//
// The stream position is persisted after the publish, so a crash between the
// two republishes the event. Consumers absorb the duplicate via the
// projection ledger.
type relay struct {
	DataStore persistence.DataStore
	Publisher *messaging.Publisher
	Subject   string
	Logger    logging.Logger
}

func (r *relay) NextToken(ctx context.Context) (eventstream.Token, error) {
	data, ok, err := r.DataStore.LoadResource(
		ctx,
		relayTenantID,
		relayBucket,
		relayKey,
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

func (r *relay) HandleEvent(
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

	if err := r.Publisher.Publish(
		tenant.With(ctx, scope),
		r.Subject+"."+env.EventType,
		env,
	); err != nil {
		return err
	}

	data, err := ev.Token.MarshalText()
	if err != nil {
		return err
	}

	return persistence.WithTransaction(
		ctx,
		r.DataStore,
		func(tx persistence.Transaction) error {
			return tx.SaveResource(
				ctx,
				relayTenantID,
				relayBucket,
				relayKey,
				data,
			)
		},
	)
}
