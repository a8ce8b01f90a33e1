package envelope_test

import (
	"context"
	"errors"
	"time"

	. "github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Packer", func() {
	var (
		packer *Packer
		now    time.Time
	)

	BeforeEach(func() {
		now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		ids := 0
		packer = &Packer{
			GenerateID: func() string {
				ids++
				return []string{"<id-1>", "<id-2>", "<id-3>"}[ids-1]
			},
			Now: func() time.Time {
				return now
			},
		}
	})

	Describe("func Pack()", func() {
		It("stamps the envelope with the calling scope", func() {
			ctx := tenant.With(
				context.Background(),
				tenant.Scope{
					TenantID:      "tenant-a",
					UserID:        "user-1",
					CorrelationID: "<correlation>",
				},
			)

			env, err := packer.Pack(ctx, "TicketCreated", []byte(`{}`))
			Expect(err).ShouldNot(HaveOccurred())

			Expect(env.MessageID).To(Equal("<id-1>"))
			Expect(env.TenantID).To(Equal("tenant-a"))
			Expect(env.UserID).To(Equal("user-1"))
			Expect(env.CorrelationID).To(Equal("<correlation>"))
			Expect(env.CausationID).To(Equal("<id-1>"))
			Expect(env.EventType).To(Equal("TicketCreated"))
			Expect(env.CreatedAt).To(Equal(now))
		})

		It("uses the message's own ID as the correlation ID if the scope has none", func() {
			ctx := tenant.With(
				context.Background(),
				tenant.Scope{TenantID: "tenant-a"},
			)

			env, err := packer.Pack(ctx, "TicketCreated", []byte(`{}`))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(env.CorrelationID).To(Equal(env.MessageID))
		})

		It("fails without a tenant scope", func() {
			_, err := packer.Pack(
				context.Background(),
				"TicketCreated",
				[]byte(`{}`),
			)

			var expected tenant.MissingContextError
			Expect(errors.As(err, &expected)).To(BeTrue())
		})
	})

	Describe("func PackChild()", func() {
		It("inherits the cause's tenant and correlation ID", func() {
			ctx := tenant.With(
				context.Background(),
				tenant.Scope{
					TenantID:      "tenant-a",
					CorrelationID: "<correlation>",
				},
			)

			cause, err := packer.Pack(ctx, "TicketCreated", []byte(`{}`))
			Expect(err).ShouldNot(HaveOccurred())

			child := packer.PackChild(cause, "TicketAudited", []byte(`{}`))

			Expect(child.MessageID).To(Equal("<id-2>"))
			Expect(child.TenantID).To(Equal("tenant-a"))
			Expect(child.CorrelationID).To(Equal("<correlation>"))
			Expect(child.CausationID).To(Equal(cause.MessageID))
		})
	})
})

var _ = Describe("func Marshal()", func() {
	It("round-trips through Unmarshal()", func() {
		env := &Envelope{
			MessageID:     "<id>",
			CorrelationID: "<correlation>",
			CausationID:   "<cause>",
			TenantID:      "tenant-a",
			EventType:     "TicketCreated",
			Data:          []byte(`{"title":"broken printer"}`),
			CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}

		data, err := Marshal(env)
		Expect(err).ShouldNot(HaveOccurred())

		parsed, err := Unmarshal(data)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(parsed).To(Equal(env))
	})

	It("fails to unmarshal an invalid envelope", func() {
		_, err := Unmarshal([]byte(`{"message_id":""}`))
		Expect(err).Should(HaveOccurred())
	})
})
