// Package memorytransport provides an in-memory implementation of the
// messaging.Transport interface.
package memorytransport

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Broccode/acci-eaf-sub000/messaging"
)

// ErrTransportClosed is returned by operations on a closed transport.
var ErrTransportClosed = errors.New("the transport is closed")

// Transport is an in-memory messaging.Transport.
//
// Every subscription receives its own copy of each matching message, so the
// transport behaves like a bus with one consumer group per subscription.
// Delivery is at-least-once; a rejected delivery is redelivered to the same
// subscription ahead of newer messages.
type Transport struct {
	m      sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// Publish sends a message to every subscription with a matching pattern.
func (t *Transport) Publish(
	ctx context.Context,
	subject string,
	headers map[string]string,
	payload []byte,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.m.Lock()
	defer t.m.Unlock()

	if t.closed {
		return ErrTransportClosed
	}

	for s := range t.subs {
		if matches(s.pattern, subject) {
			s.enqueue(message{
				subject: subject,
				headers: cloneHeaders(headers),
				payload: payload,
			})
		}
	}

	return nil
}

// Subscribe returns a subscription that receives messages published on
// subjects matching pattern.
func (t *Transport) Subscribe(
	ctx context.Context,
	pattern string,
) (messaging.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.m.Lock()
	defer t.m.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}

	s := &subscription{
		t:       t,
		pattern: pattern,
		done:    make(chan struct{}),
	}

	if t.subs == nil {
		t.subs = map[*subscription]struct{}{}
	}

	t.subs[s] = struct{}{}

	return s, nil
}

// Close shuts the transport down, closing all subscriptions.
func (t *Transport) Close() error {
	t.m.Lock()
	defer t.m.Unlock()

	if t.closed {
		return ErrTransportClosed
	}

	t.closed = true

	for s := range t.subs {
		s.close()
	}

	t.subs = nil

	return nil
}

// SubscriberCount returns the number of active subscriptions.
func (t *Transport) SubscriberCount() int {
	t.m.Lock()
	defer t.m.Unlock()

	return len(t.subs)
}

// remove detaches s from the transport.
func (t *Transport) remove(s *subscription) {
	t.m.Lock()
	defer t.m.Unlock()

	delete(t.subs, s)
}

// matches returns true if subject falls within pattern.
//
// A pattern is either a literal subject, the "*" wildcard matching every
// subject, or a prefix followed by ".*" matching every subject below that
// prefix.
func matches(pattern, subject string) bool {
	if pattern == "*" || pattern == subject {
		return true
	}

	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(subject, prefix+".")
	}

	return false
}

func cloneHeaders(h map[string]string) map[string]string {
	c := make(map[string]string, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}
