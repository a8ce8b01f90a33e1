package messaging_test

import (
	"context"
	"errors"
	"time"

	"github.com/Broccode/acci-eaf-sub000/fixtures"
	. "github.com/Broccode/acci-eaf-sub000/messaging"
	"github.com/Broccode/acci-eaf-sub000/messaging/memorytransport"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Publisher", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		transport *memorytransport.Transport
		publisher *Publisher
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		transport = &memorytransport.Transport{}
		publisher = &Publisher{Transport: transport}
	})

	AfterEach(func() {
		cancel()
	})

	Describe("func Publish()", func() {
		It("carries the envelope's meta-data in the message headers", func() {
			sub, err := transport.Subscribe(ctx, "events.*")
			Expect(err).ShouldNot(HaveOccurred())
			defer sub.Close()

			env := fixtures.NewEnvelope(
				"tenant-a",
				"TicketCreated",
				[]byte(`{"title":"broken printer"}`),
			)
			env.UserID = "user-1"

			err = tenant.RunInScope(
				ctx,
				tenant.Scope{
					TenantID:      "tenant-a",
					UserID:        "user-1",
					CorrelationID: env.CorrelationID,
				},
				func(ctx context.Context) error {
					return publisher.Publish(ctx, "events.TicketCreated", env)
				},
			)
			Expect(err).ShouldNot(HaveOccurred())

			d, err := sub.Receive(ctx)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(d.Subject).To(Equal("events.TicketCreated"))
			Expect(d.Payload).To(Equal(env.Data))
			Expect(d.Headers[TenantIDHeader]).To(Equal("tenant-a"))
			Expect(d.Headers[UserIDHeader]).To(Equal("user-1"))
			Expect(d.Headers[MessageIDHeader]).To(Equal(env.MessageID))
			Expect(d.Headers[CorrelationIDHeader]).To(Equal(env.CorrelationID))
			Expect(d.Headers[EventTypeHeader]).To(Equal("TicketCreated"))
		})

		It("generates a correlation ID if the envelope has none", func() {
			sub, err := transport.Subscribe(ctx, "events.*")
			Expect(err).ShouldNot(HaveOccurred())
			defer sub.Close()

			env := fixtures.NewEnvelope("tenant-a", "TicketCreated", []byte(`{}`))
			env.CorrelationID = ""

			err = tenant.Run(ctx, "tenant-a", func(ctx context.Context) error {
				return publisher.Publish(ctx, "events.TicketCreated", env)
			})
			Expect(err).ShouldNot(HaveOccurred())

			d, err := sub.Receive(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(d.Headers[CorrelationIDHeader]).NotTo(BeEmpty())

			// The caller's envelope is left untouched.
			Expect(env.CorrelationID).To(BeEmpty())
		})

		It("fails without a tenant scope", func() {
			env := fixtures.NewEnvelope("tenant-a", "TicketCreated", []byte(`{}`))

			err := publisher.Publish(ctx, "events.TicketCreated", env)

			var expected tenant.MissingContextError
			Expect(errors.As(err, &expected)).To(BeTrue())
		})

		It("refuses to publish an envelope belonging to another tenant", func() {
			env := fixtures.NewEnvelope("tenant-b", "TicketCreated", []byte(`{}`))

			err := tenant.Run(ctx, "tenant-a", func(ctx context.Context) error {
				return publisher.Publish(ctx, "events.TicketCreated", env)
			})
			Expect(err).Should(HaveOccurred())
		})
	})
})
