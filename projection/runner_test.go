package projection_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/fixtures"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/memorypersistence"
	. "github.com/Broccode/acci-eaf-sub000/projection"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Runner", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		ds       persistence.DataStore
		registry *Registry
		runner   *Runner
		env      *envelope.Envelope
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		p := &memorypersistence.Provider{}

		var err error
		ds, err = p.Open(ctx)
		Expect(err).ShouldNot(HaveOccurred())

		registry = &Registry{}
		runner = &Runner{
			DataStore: ds,
			Registry:  registry,
		}

		env = fixtures.NewEnvelope(
			"tenant-a",
			"TicketCreated",
			[]byte(`{"title":"broken printer"}`),
		)
	})

	AfterEach(func() {
		ds.Close()
		cancel()
	})

	scoped := func() context.Context {
		return tenant.With(ctx, tenant.Scope{TenantID: "tenant-a"})
	}

	summaryHandler := func(applied *int) *fixtures.ProjectionHandler {
		return &fixtures.ProjectionHandler{
			NameValue: "ticket-summary",
			HandleEventFunc: func(
				ctx context.Context,
				tx persistence.Transaction,
				env *envelope.Envelope,
			) error {
				if applied != nil {
					*applied++
				}

				return tx.SaveResource(
					ctx,
					env.TenantID,
					"ticket-summaries",
					env.MessageID,
					[]byte("open"),
				)
			},
		}
	}

	Describe("func Handle()", func() {
		It("applies the event and commits the read-model writes", func() {
			outcome, err := runner.Handle(scoped(), summaryHandler(nil), env)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(outcome).To(Equal(Applied))

			v, ok, err := ds.LoadResource(
				ctx,
				"tenant-a",
				"ticket-summaries",
				env.MessageID,
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal([]byte("open")))
		})

		It("absorbs a redelivery without invoking the handler again", func() {
			var applied int
			h := summaryHandler(&applied)

			outcome, err := runner.Handle(scoped(), h, env)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(outcome).To(Equal(Applied))

			outcome, err = runner.Handle(scoped(), h, env)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(outcome).To(Equal(AlreadyProcessed))
			Expect(applied).To(Equal(1))
		})

		It("rolls back all writes when the handler fails", func() {
			h := &fixtures.ProjectionHandler{
				NameValue: "ticket-summary",
				HandleEventFunc: func(
					ctx context.Context,
					tx persistence.Transaction,
					env *envelope.Envelope,
				) error {
					err := tx.SaveResource(
						ctx,
						env.TenantID,
						"ticket-summaries",
						env.MessageID,
						[]byte("open"),
					)
					Expect(err).ShouldNot(HaveOccurred())

					return errors.New("<error>")
				},
			}

			outcome, err := runner.Handle(scoped(), h, env)
			Expect(outcome).To(Equal(Failed))

			var failure HandlerFailure
			Expect(errors.As(err, &failure)).To(BeTrue())
			Expect(failure.Projector).To(Equal("ticket-summary"))

			_, ok, err := ds.LoadResource(
				ctx,
				"tenant-a",
				"ticket-summaries",
				env.MessageID,
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeFalse())

			// The failed attempt is not recorded; a retry applies the event.
			outcome, err = runner.Handle(scoped(), summaryHandler(nil), env)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(outcome).To(Equal(Applied))
		})

		It("applies a concurrently delivered event exactly once", func() {
			var (
				applied int
				m       sync.Mutex
			)

			h := &fixtures.ProjectionHandler{
				NameValue: "ticket-summary",
				HandleEventFunc: func(
					ctx context.Context,
					tx persistence.Transaction,
					env *envelope.Envelope,
				) error {
					m.Lock()
					applied++
					m.Unlock()

					return tx.SaveResource(
						ctx,
						env.TenantID,
						"ticket-summaries",
						env.MessageID,
						[]byte("open"),
					)
				},
			}

			outcomes := make(chan Outcome, 2)

			var g sync.WaitGroup
			for i := 0; i < 2; i++ {
				g.Add(1)
				go func() {
					defer g.Done()
					defer GinkgoRecover()

					outcome, err := runner.Handle(scoped(), h, env)
					Expect(err).ShouldNot(HaveOccurred())
					outcomes <- outcome
				}()
			}
			g.Wait()
			close(outcomes)

			var results []Outcome
			for o := range outcomes {
				results = append(results, o)
			}

			Expect(results).To(ConsistOf(Applied, AlreadyProcessed))
			Expect(applied).To(Equal(1))
		})

		It("fails without a tenant scope", func() {
			outcome, err := runner.Handle(ctx, summaryHandler(nil), env)
			Expect(outcome).To(Equal(Failed))

			var expected tenant.MissingContextError
			Expect(errors.As(err, &expected)).To(BeTrue())
		})

		It("refuses an envelope belonging to another tenant", func() {
			other := tenant.With(ctx, tenant.Scope{TenantID: "tenant-b"})

			outcome, err := runner.Handle(other, summaryHandler(nil), env)
			Expect(outcome).To(Equal(Failed))
			Expect(err).Should(HaveOccurred())
		})
	})

	Describe("func HandleMessage()", func() {
		It("presents the event to every registered projector", func() {
			var summaries, audits int

			registry.Register(&fixtures.ProjectionHandler{
				NameValue: "ticket-summary",
				HandleEventFunc: func(
					context.Context,
					persistence.Transaction,
					*envelope.Envelope,
				) error {
					summaries++
					return nil
				},
			})

			registry.Register(&fixtures.ProjectionHandler{
				NameValue: "ticket-audit",
				HandleEventFunc: func(
					context.Context,
					persistence.Transaction,
					*envelope.Envelope,
				) error {
					audits++
					return nil
				},
			})

			err := runner.HandleMessage(scoped(), env)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(summaries).To(Equal(1))
			Expect(audits).To(Equal(1))
		})

		It("does not roll back one projector because another failed", func() {
			registry.Register(summaryHandler(nil))
			registry.Register(&fixtures.ProjectionHandler{
				NameValue: "ticket-audit",
				HandleEventFunc: func(
					context.Context,
					persistence.Transaction,
					*envelope.Envelope,
				) error {
					return errors.New("<error>")
				},
			})

			err := runner.HandleMessage(scoped(), env)
			Expect(err).Should(HaveOccurred())

			_, ok, err := ds.LoadResource(
				ctx,
				"tenant-a",
				"ticket-summaries",
				env.MessageID,
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
		})
	})
})
