package fixtures

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/messaging"
)

// MessageHandler is a test implementation of messaging.Handler.
type MessageHandler struct {
	HandleMessageFunc func(ctx context.Context, env *envelope.Envelope) error
}

var _ messaging.Handler = (*MessageHandler)(nil)

// HandleMessage calls h.HandleMessageFunc if it is non-nil.
func (h *MessageHandler) HandleMessage(
	ctx context.Context,
	env *envelope.Envelope,
) error {
	if h.HandleMessageFunc != nil {
		return h.HandleMessageFunc(ctx, env)
	}

	return nil
}

// StreamHandler is a test implementation of eventstream.Handler.
type StreamHandler struct {
	NextTokenFunc   func(ctx context.Context) (eventstream.Token, error)
	HandleEventFunc func(
		ctx context.Context,
		tok eventstream.Token,
		ev eventstream.Event,
	) error
}

var _ eventstream.Handler = (*StreamHandler)(nil)

// NextToken calls h.NextTokenFunc if it is non-nil, otherwise it returns the
// tail token.
func (h *StreamHandler) NextToken(
	ctx context.Context,
) (eventstream.Token, error) {
	if h.NextTokenFunc != nil {
		return h.NextTokenFunc(ctx)
	}

	return eventstream.TailToken(), nil
}

// HandleEvent calls h.HandleEventFunc if it is non-nil.
func (h *StreamHandler) HandleEvent(
	ctx context.Context,
	tok eventstream.Token,
	ev eventstream.Event,
) error {
	if h.HandleEventFunc != nil {
		return h.HandleEventFunc(ctx, tok, ev)
	}

	return nil
}
