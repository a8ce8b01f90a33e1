package fixtures

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/projection"
)

// ProjectionHandler is a test implementation of projection.Handler.
type ProjectionHandler struct {
	NameValue       string
	HandleEventFunc func(
		ctx context.Context,
		tx persistence.Transaction,
		env *envelope.Envelope,
	) error
}

var _ projection.Handler = (*ProjectionHandler)(nil)

// Name returns h.NameValue, or "<projection>" if it is empty.
func (h *ProjectionHandler) Name() string {
	if h.NameValue == "" {
		return "<projection>"
	}

	return h.NameValue
}

// HandleEvent calls h.HandleEventFunc if it is non-nil.
func (h *ProjectionHandler) HandleEvent(
	ctx context.Context,
	tx persistence.Transaction,
	env *envelope.Envelope,
) error {
	if h.HandleEventFunc != nil {
		return h.HandleEventFunc(ctx, tx, env)
	}

	return nil
}
