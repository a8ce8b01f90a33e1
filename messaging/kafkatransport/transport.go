// Package kafkatransport provides an implementation of the
// messaging.Transport interface that uses Apache Kafka.
//
// Subjects map directly to topic names. Each subscription joins the
// configured consumer group with its own client, so deliveries are shared
// between the subscribers of a group rather than broadcast.
package kafkatransport

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/Broccode/acci-eaf-sub000/messaging"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Transport is a messaging.Transport backed by a Kafka cluster.
type Transport struct {
	// Brokers is the set of seed brokers used to bootstrap the connection.
	Brokers []string

	// GroupID is the consumer group that subscriptions join.
	GroupID string

	// ClientID identifies this process to the brokers. If it is empty, the
	// franz-go default is used.
	ClientID string

	// Options are additional client options applied to both producer and
	// consumer clients, after the options derived from the fields above.
	Options []kgo.Opt

	m        sync.Mutex
	producer *kgo.Client
}

// Publish sends a message on the topic named by subject.
//
// It blocks until the cluster acknowledges the write.
func (t *Transport) Publish(
	ctx context.Context,
	subject string,
	headers map[string]string,
	payload []byte,
) error {
	p, err := t.producerClient()
	if err != nil {
		return err
	}

	rec := &kgo.Record{
		Topic:   subject,
		Value:   payload,
		Headers: marshalHeaders(headers),
	}

	return p.ProduceSync(ctx, rec).FirstErr()
}

// Subscribe returns a subscription that consumes the topics matching pattern
// as part of the transport's consumer group.
func (t *Transport) Subscribe(
	ctx context.Context,
	pattern string,
) (messaging.Subscription, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(t.Brokers...),
		kgo.ConsumerGroup(t.GroupID),
		kgo.DisableAutoCommit(),
	}

	if rx, ok := patternRegex(pattern); ok {
		opts = append(opts, kgo.ConsumeTopics(rx), kgo.ConsumeRegex())
	} else {
		opts = append(opts, kgo.ConsumeTopics(pattern))
	}

	if t.ClientID != "" {
		opts = append(opts, kgo.ClientID(t.ClientID))
	}

	opts = append(opts, t.Options...)

	c, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return &subscription{client: c}, nil
}

// Close shuts down the producer client. Subscriptions are closed
// individually.
func (t *Transport) Close() error {
	t.m.Lock()
	defer t.m.Unlock()

	if t.producer != nil {
		t.producer.Close()
		t.producer = nil
	}

	return nil
}

// producerClient returns the shared producer client, creating it on first
// use.
func (t *Transport) producerClient() (*kgo.Client, error) {
	t.m.Lock()
	defer t.m.Unlock()

	if t.producer == nil {
		opts := []kgo.Opt{
			kgo.SeedBrokers(t.Brokers...),
		}

		if t.ClientID != "" {
			opts = append(opts, kgo.ClientID(t.ClientID))
		}

		opts = append(opts, t.Options...)

		p, err := kgo.NewClient(opts...)
		if err != nil {
			return nil, err
		}

		t.producer = p
	}

	return t.producer, nil
}

// patternRegex translates a subject pattern into a topic regex, if the
// pattern contains a wildcard.
func patternRegex(pattern string) (string, bool) {
	if pattern == "*" {
		return ".*", true
	}

	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return regexp.QuoteMeta(prefix) + "\\..*", true
	}

	return "", false
}

func marshalHeaders(h map[string]string) []kgo.RecordHeader {
	headers := make([]kgo.RecordHeader, 0, len(h))

	for k, v := range h {
		headers = append(headers, kgo.RecordHeader{
			Key:   k,
			Value: []byte(v),
		})
	}

	return headers
}

func unmarshalHeaders(headers []kgo.RecordHeader) map[string]string {
	h := make(map[string]string, len(headers))

	for _, rh := range headers {
		h[rh.Key] = string(rh.Value)
	}

	return h
}
