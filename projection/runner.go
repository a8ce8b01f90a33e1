package projection

import (
	"context"
	"fmt"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	"github.com/dogmatiq/dodeca/logging"
	"go.uber.org/multierr"
)

// Outcome describes the result of presenting an event to a projector.
type Outcome int

const (
	// Applied means the projector processed the event and its read-model
	// writes were committed together with the dedup ledger entry.
	Applied Outcome = iota

	// AlreadyProcessed means the ledger shows the projector has processed
	// the event before; the read-model was not touched.
	AlreadyProcessed

	// Failed means the projector returned an error; all of its writes were
	// rolled back and the ledger does not record the event as processed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyProcessed:
		return "already processed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown outcome (%d)", int(o))
	}
}

// HandlerFailure is the error returned when a projector fails to handle an
// event.
type HandlerFailure struct {
	// Projector is the name of the projector that failed.
	Projector string

	// MessageID is the ID of the event that was being handled.
	MessageID string

	// Cause is the error returned by the projector.
	Cause error
}

func (e HandlerFailure) Error() string {
	return fmt.Sprintf(
		"projector %s failed to handle event %s: %s",
		e.Projector,
		e.MessageID,
		e.Cause,
	)
}

func (e HandlerFailure) Unwrap() error {
	return e.Cause
}

// Runner presents events to projectors with an exactly-once effect.
//
// For each (projector, event, tenant) combination the ledger entry and the
// projector's read-model writes commit in a single transaction, so an event
// is either fully applied exactly once or not at all. Redeliveries and
// concurrent deliveries of the same event are absorbed by the ledger.
type Runner struct {
	// DataStore is the persistence backend holding the ledger and the
	// read-models.
	DataStore persistence.DataStore

	// Registry is the set of projectors to dispatch to.
	Registry *Registry

	// Logger is the target for log messages about projection progress.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger
}

// Handle presents env to a single projector.
//
// It requires a tenant scope on ctx matching the envelope's tenant. The
// returned outcome is Failed if and only if the returned error is non-nil.
func (r *Runner) Handle(
	ctx context.Context,
	h Handler,
	env *envelope.Envelope,
) (Outcome, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Failed, err
	}

	if env.TenantID != scope.TenantID {
		return Failed, fmt.Errorf(
			"envelope %s belongs to tenant %s, but the current scope is tenant %s",
			env.MessageID,
			env.TenantID,
			scope.TenantID,
		)
	}

	tx, err := r.DataStore.Begin(ctx)
	if err != nil {
		return Failed, err
	}
	defer tx.Rollback()

	ok, err := tx.MarkProcessed(ctx, h.Name(), env.MessageID, scope.TenantID)
	if err != nil {
		return Failed, err
	}

	if !ok {
		logging.Debug(
			r.Logger,
			"projector %s has already processed event %s for tenant %s",
			h.Name(),
			env.MessageID,
			scope.TenantID,
		)

		return AlreadyProcessed, nil
	}

	if err := h.HandleEvent(ctx, tx, env); err != nil {
		return Failed, HandlerFailure{
			Projector: h.Name(),
			MessageID: env.MessageID,
			Cause:     err,
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Failed, err
	}

	logging.Debug(
		r.Logger,
		"projector %s applied %s event %s for tenant %s",
		h.Name(),
		env.EventType,
		env.MessageID,
		scope.TenantID,
	)

	return Applied, nil
}

// HandleMessage presents env to every projector registered for its event
// type, implementing messaging.Handler.
//
// Each projector runs in its own transaction; the failure of one does not
// roll back the others. If any projector fails the combined error is
// returned, causing the delivery to be redelivered. Projectors that have
// already processed the event absorb the redelivery via the ledger.
func (r *Runner) HandleMessage(
	ctx context.Context,
	env *envelope.Envelope,
) error {
	var err error

	for _, h := range r.Registry.HandlersFor(env.EventType) {
		if _, herr := r.Handle(ctx, h, env); herr != nil {
			err = multierr.Append(err, herr)
		}
	}

	return err
}
