// Package projection contains the engine's projection system, which builds
// read-models from the event stream exactly once per event.
package projection

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/persistence"
)

// Handler is an application-defined projector that updates a read-model in
// response to events.
type Handler interface {
	// Name returns a unique identifier for the projector.
	//
	// The name keys the dedup ledger; it must remain stable across process
	// restarts for the exactly-once guarantee to hold.
	Name() string

	// HandleEvent updates the read-model to reflect the occurrence of the
	// event in env.
	//
	// All writes must go through tx so that they commit atomically with the
	// dedup ledger entry for the event. ctx carries the tenant scope of the
	// event being projected.
	HandleEvent(
		ctx context.Context,
		tx persistence.Transaction,
		env *envelope.Envelope,
	) error
}
