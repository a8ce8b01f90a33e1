package projection_test

import (
	"context"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/fixtures"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/memorypersistence"
	. "github.com/Broccode/acci-eaf-sub000/projection"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type StreamAdaptor", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		ds      persistence.DataStore
		adaptor *StreamAdaptor
		scopes  chan tenant.Scope
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		p := &memorypersistence.Provider{}

		var err error
		ds, err = p.Open(ctx)
		Expect(err).ShouldNot(HaveOccurred())

		scopes = make(chan tenant.Scope, 10)

		adaptor = &StreamAdaptor{
			Handler: &fixtures.ProjectionHandler{
				NameValue: "ticket-summary",
				HandleEventFunc: func(
					ctx context.Context,
					tx persistence.Transaction,
					env *envelope.Envelope,
				) error {
					s, err := tenant.Require(ctx)
					if err != nil {
						return err
					}

					scopes <- s

					return tx.SaveResource(
						ctx,
						env.TenantID,
						"ticket-summaries",
						env.MessageID,
						[]byte("open"),
					)
				},
			},
			DataStore: ds,
		}
	})

	AfterEach(func() {
		ds.Close()
		cancel()
	})

	appendEvent := func(tenantID string) eventstream.Event {
		next, err := ds.NextGlobalSequence(ctx)
		Expect(err).ShouldNot(HaveOccurred())

		records, err := ds.AppendEvents(
			ctx,
			tenantID,
			"stream-"+tenantID,
			0,
			fixtures.NewEnvelopes(tenantID, "TicketCreated", 1),
		)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(records[0].GlobalSequence).To(Equal(next))

		return records[0].StreamEvent()
	}

	Describe("func NextToken()", func() {
		It("returns the tail token before any events are handled", func() {
			tok, err := adaptor.NextToken(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(tok).To(Equal(eventstream.TailToken()))
		})

		It("returns the token of the last handled event", func() {
			ev := appendEvent("tenant-a")

			err := adaptor.HandleEvent(ctx, eventstream.TailToken(), ev)
			Expect(err).ShouldNot(HaveOccurred())

			tok, err := adaptor.NextToken(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(tok).To(Equal(ev.Token))
		})
	})

	Describe("func HandleEvent()", func() {
		It("establishes the event's tenant scope for the handler", func() {
			ev := appendEvent("tenant-a")

			err := adaptor.HandleEvent(ctx, eventstream.TailToken(), ev)
			Expect(err).ShouldNot(HaveOccurred())

			var s tenant.Scope
			Expect(scopes).To(Receive(&s))
			Expect(s.TenantID).To(Equal("tenant-a"))
		})

		It("advances the offset without reapplying an already-processed event", func() {
			ev := appendEvent("tenant-a")

			err := adaptor.HandleEvent(ctx, eventstream.TailToken(), ev)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(scopes).To(Receive())

			// Replay, as a crash between offset write and restart would.
			err = adaptor.HandleEvent(ctx, eventstream.TailToken(), ev)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(scopes).ShouldNot(Receive())

			tok, err := adaptor.NextToken(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(tok).To(Equal(ev.Token))
		})
	})
})
