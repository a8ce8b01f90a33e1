package memorytransport

import (
	"context"
	"sync"

	"github.com/Broccode/acci-eaf-sub000/messaging"
)

// message is a single queued message within a subscription.
type message struct {
	subject string
	headers map[string]string
	payload []byte
}

// subscription is a messaging.Subscription backed by an in-memory queue.
type subscription struct {
	t       *Transport
	pattern string
	done    chan struct{}

	m      sync.Mutex
	queue  []message
	ready  chan struct{}
	closed bool
}

// Receive returns the next queued message, blocking until one arrives.
func (s *subscription) Receive(
	ctx context.Context,
) (messaging.Delivery, error) {
	for {
		s.m.Lock()

		if s.closed {
			s.m.Unlock()
			return messaging.Delivery{}, ErrTransportClosed
		}

		if len(s.queue) != 0 {
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.m.Unlock()

			return messaging.Delivery{
				Subject: msg.subject,
				Headers: msg.headers,
				Payload: msg.payload,
				Ack:     func() error { return nil },
				Nack: func() error {
					s.redeliver(msg)
					return nil
				},
			}, nil
		}

		ready := s.wait()
		s.m.Unlock()

		select {
		case <-ctx.Done():
			return messaging.Delivery{}, ctx.Err()
		case <-s.done:
			return messaging.Delivery{}, ErrTransportClosed
		case <-ready:
		}
	}
}

// Close detaches the subscription from the transport. Queued messages are
// discarded.
func (s *subscription) Close() error {
	s.t.remove(s)
	s.close()

	return nil
}

// enqueue appends a message to the queue and wakes a blocked Receive() call.
func (s *subscription) enqueue(msg message) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.closed {
		return
	}

	s.queue = append(s.queue, msg)
	s.signal()
}

// redeliver returns a rejected message to the front of the queue so that it
// is seen again before newer messages.
func (s *subscription) redeliver(msg message) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.closed {
		return
	}

	s.queue = append([]message{msg}, s.queue...)
	s.signal()
}

func (s *subscription) close() {
	s.m.Lock()
	defer s.m.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.queue = nil

	close(s.done)
	s.signal()
}

// signal wakes any blocked Receive() calls. It must be called while holding
// s.m.
func (s *subscription) signal() {
	if s.ready != nil {
		close(s.ready)
		s.ready = nil
	}
}

// wait returns a channel that is closed by the next signal() call. It must be
// called while holding s.m.
func (s *subscription) wait() chan struct{} {
	if s.ready == nil {
		s.ready = make(chan struct{})
	}

	return s.ready
}
