package kafkatransport

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/messaging"
	"github.com/twmb/franz-go/pkg/kgo"
)

// maxPollRecords is the upper limit on the number of records buffered from a
// single poll.
const maxPollRecords = 100

// subscription is a messaging.Subscription that consumes via a dedicated
// franz-go client.
type subscription struct {
	client  *kgo.Client
	pending []*kgo.Record
}

// Receive returns the next record fetched from the cluster.
func (s *subscription) Receive(
	ctx context.Context,
) (messaging.Delivery, error) {
	for len(s.pending) == 0 {
		fetches := s.client.PollRecords(ctx, maxPollRecords)

		if err := fetches.Err0(); err != nil {
			return messaging.Delivery{}, err
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			s.pending = append(s.pending, rec)
		})
	}

	rec := s.pending[0]
	s.pending = s.pending[1:]

	return messaging.Delivery{
		Subject: rec.Topic,
		Headers: unmarshalHeaders(rec.Headers),
		Payload: rec.Value,
		Ack: func() error {
			s.client.MarkCommitRecords(rec)
			return s.client.CommitMarkedOffsets(context.Background())
		},
		// A rejected record's offset is simply never committed; the broker
		// redelivers it when the group next rebalances or restarts.
		Nack: func() error { return nil },
	}, nil
}

// Close leaves the consumer group and releases the client.
func (s *subscription) Close() error {
	s.client.Close()
	return nil
}
