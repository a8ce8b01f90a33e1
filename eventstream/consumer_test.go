package eventstream_test

import (
	"context"
	"errors"
	"time"

	"github.com/Broccode/acci-eaf-sub000/eventstore"
	. "github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/fixtures"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/memorypersistence"
	"github.com/dogmatiq/linger/backoff"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Consumer", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		ds     persistence.DataStore
		stream *eventstore.Store
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		p := &memorypersistence.Provider{}

		var err error
		ds, err = p.Open(ctx)
		Expect(err).ShouldNot(HaveOccurred())

		stream = &eventstore.Store{DataStore: ds}
	})

	AfterEach(func() {
		ds.Close()
		cancel()
	})

	appendEvents := func(n int) {
		next, err := ds.NextGlobalSequence(ctx)
		Expect(err).ShouldNot(HaveOccurred())

		_, err = ds.AppendEvents(
			ctx,
			fixtures.DefaultTenantID,
			"stream-1",
			next-1,
			fixtures.NewEnvelopes(fixtures.DefaultTenantID, "TicketCreated", n),
		)
		Expect(err).ShouldNot(HaveOccurred())
	}

	Describe("func Run()", func() {
		It("passes events to the handler in order", func() {
			appendEvents(3)

			events := make(chan Event, 3)

			var token Token
			handler := &fixtures.StreamHandler{
				NextTokenFunc: func(context.Context) (Token, error) {
					return token, nil
				},
				HandleEventFunc: func(
					_ context.Context,
					_ Token,
					ev Event,
				) error {
					token = ev.Token
					events <- ev
					return nil
				},
			}

			consumer := &Consumer{
				Stream:          stream,
				Handler:         handler,
				BackoffStrategy: backoff.Constant(10 * time.Millisecond),
			}

			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()

			done := make(chan error, 1)
			go func() {
				done <- consumer.Run(runCtx)
			}()

			var last uint64
			for i := 0; i < 3; i++ {
				var ev Event
				Eventually(events).Should(Receive(&ev))
				Expect(ev.Token.GlobalSequence).To(BeNumerically(">", last))
				last = ev.Token.GlobalSequence
			}

			cancelRun()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})

		It("resumes from the handler's token after a failure", func() {
			appendEvents(2)

			var (
				token   Token
				failed  bool
				handled []uint64
			)

			events := make(chan Event, 4)

			handler := &fixtures.StreamHandler{
				NextTokenFunc: func(context.Context) (Token, error) {
					return token, nil
				},
				HandleEventFunc: func(
					_ context.Context,
					_ Token,
					ev Event,
				) error {
					if ev.Token.GlobalSequence == 2 && !failed {
						failed = true
						return errors.New("<error>")
					}

					token = ev.Token
					handled = append(handled, ev.Token.GlobalSequence)
					events <- ev
					return nil
				},
			}

			consumer := &Consumer{
				Stream:          stream,
				Handler:         handler,
				BackoffStrategy: backoff.Constant(10 * time.Millisecond),
			}

			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()

			go consumer.Run(runCtx)

			Eventually(events).Should(Receive())
			Eventually(events).Should(Receive())

			Expect(handled).To(Equal([]uint64{1, 2}))
		})
	})
})
