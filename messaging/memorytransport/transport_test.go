package memorytransport_test

import (
	"context"
	"time"

	"github.com/Broccode/acci-eaf-sub000/messaging"
	. "github.com/Broccode/acci-eaf-sub000/messaging/memorytransport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Transport", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		transport *Transport
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		transport = &Transport{}
	})

	AfterEach(func() {
		cancel()
	})

	publish := func(subject, payload string) {
		err := transport.Publish(ctx, subject, nil, []byte(payload))
		Expect(err).ShouldNot(HaveOccurred())
	}

	receive := func(sub messaging.Subscription) messaging.Delivery {
		d, err := sub.Receive(ctx)
		Expect(err).ShouldNot(HaveOccurred())
		return d
	}

	Describe("func Publish()", func() {
		It("delivers to subscriptions with a matching pattern", func() {
			exact, err := transport.Subscribe(ctx, "events.TicketCreated")
			Expect(err).ShouldNot(HaveOccurred())
			defer exact.Close()

			prefix, err := transport.Subscribe(ctx, "events.*")
			Expect(err).ShouldNot(HaveOccurred())
			defer prefix.Close()

			other, err := transport.Subscribe(ctx, "commands.*")
			Expect(err).ShouldNot(HaveOccurred())
			defer other.Close()

			publish("events.TicketCreated", "<payload>")

			d := receive(exact)
			Expect(d.Payload).To(Equal([]byte("<payload>")))

			d = receive(prefix)
			Expect(d.Subject).To(Equal("events.TicketCreated"))

			recvCtx, cancelRecv := context.WithTimeout(
				ctx,
				50*time.Millisecond,
			)
			defer cancelRecv()

			_, err = other.Receive(recvCtx)
			Expect(err).To(Equal(context.DeadlineExceeded))
		})

		It("delivers each subscription its own copy", func() {
			a, err := transport.Subscribe(ctx, "events.*")
			Expect(err).ShouldNot(HaveOccurred())
			defer a.Close()

			b, err := transport.Subscribe(ctx, "events.*")
			Expect(err).ShouldNot(HaveOccurred())
			defer b.Close()

			publish("events.TicketCreated", "<payload>")

			receive(a)
			receive(b)
		})
	})

	Describe("type Subscription", func() {
		Describe("func Receive()", func() {
			It("blocks until a message is published", func() {
				sub, err := transport.Subscribe(ctx, "events.*")
				Expect(err).ShouldNot(HaveOccurred())
				defer sub.Close()

				go func() {
					time.Sleep(50 * time.Millisecond)
					publish("events.TicketCreated", "<payload>")
				}()

				d := receive(sub)
				Expect(d.Payload).To(Equal([]byte("<payload>")))
			})

			It("redelivers a rejected message before newer messages", func() {
				sub, err := transport.Subscribe(ctx, "events.*")
				Expect(err).ShouldNot(HaveOccurred())
				defer sub.Close()

				publish("events.TicketCreated", "<first>")
				publish("events.TicketCreated", "<second>")

				d := receive(sub)
				Expect(d.Payload).To(Equal([]byte("<first>")))

				err = d.Nack()
				Expect(err).ShouldNot(HaveOccurred())

				d = receive(sub)
				Expect(d.Payload).To(Equal([]byte("<first>")))

				err = d.Ack()
				Expect(err).ShouldNot(HaveOccurred())

				d = receive(sub)
				Expect(d.Payload).To(Equal([]byte("<second>")))
			})
		})

		Describe("func Close()", func() {
			It("stops delivery to the subscription", func() {
				sub, err := transport.Subscribe(ctx, "events.*")
				Expect(err).ShouldNot(HaveOccurred())

				err = sub.Close()
				Expect(err).ShouldNot(HaveOccurred())

				_, err = sub.Receive(ctx)
				Expect(err).To(Equal(ErrTransportClosed))
			})
		})
	})

	Describe("func Close()", func() {
		It("closes all subscriptions", func() {
			sub, err := transport.Subscribe(ctx, "events.*")
			Expect(err).ShouldNot(HaveOccurred())

			err = transport.Close()
			Expect(err).ShouldNot(HaveOccurred())

			_, err = sub.Receive(ctx)
			Expect(err).To(Equal(ErrTransportClosed))

			err = transport.Publish(ctx, "events.TicketCreated", nil, nil)
			Expect(err).To(Equal(ErrTransportClosed))
		})
	})
})
