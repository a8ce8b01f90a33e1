package eaf_test

import (
	"context"
	"sync"
	"time"

	. "github.com/Broccode/acci-eaf-sub000"
	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/fixtures"
	"github.com/Broccode/acci-eaf-sub000/messaging"
	"github.com/Broccode/acci-eaf-sub000/messaging/memorytransport"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/memorypersistence"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	"github.com/dogmatiq/linger/backoff"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Engine", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		transport *memorytransport.Transport
		applied   int
		appliedMu sync.Mutex
		engine    *Engine
	)

	newSummaryProjection := func() *fixtures.ProjectionHandler {
		return &fixtures.ProjectionHandler{
			NameValue: "ticket-summary",
			HandleEventFunc: func(
				ctx context.Context,
				tx persistence.Transaction,
				env *envelope.Envelope,
			) error {
				appliedMu.Lock()
				applied++
				appliedMu.Unlock()

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

	appliedCount := func() int {
		appliedMu.Lock()
		defer appliedMu.Unlock()
		return applied
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		transport = &memorytransport.Transport{}
		applied = 0

		engine = New(
			WithPersistence(&memorypersistence.Provider{}),
			WithTransport(transport),
			WithProjection(newSummaryProjection()),
			WithMessageBackoff(backoff.Constant(10*time.Millisecond)),
			WithConcurrencyLimit(4),
		)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("func Run()", func() {
		It("carries an appended event through to the projection exactly once", func() {
			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()

			done := make(chan error, 1)
			go func() {
				done <- engine.Run(runCtx)
			}()

			store, err := engine.Store(ctx)
			Expect(err).ShouldNot(HaveOccurred())

			var env *envelope.Envelope

			err = tenant.Run(ctx, "tenant-a", func(ctx context.Context) error {
				packer := &envelope.Packer{}

				env, err = packer.Pack(
					ctx,
					"TicketCreated",
					[]byte(`{"title":"broken printer"}`),
				)
				if err != nil {
					return err
				}

				_, err = store.Append(ctx, "ticket-1", 0, []*envelope.Envelope{env})
				return err
			})
			Expect(err).ShouldNot(HaveOccurred())

			// A writer that read revision 0 before the first append loses
			// deterministically.
			err = tenant.Run(ctx, "tenant-a", func(ctx context.Context) error {
				packer := &envelope.Packer{}

				stale, err := packer.Pack(ctx, "TicketCreated", []byte(`{}`))
				if err != nil {
					return err
				}

				_, err = store.Append(ctx, "ticket-1", 0, []*envelope.Envelope{stale})
				return err
			})
			Expect(persistence.IsConflict(err)).To(BeTrue())

			Eventually(appliedCount).Should(BeEquivalentTo(1))

			v, ok, err := store.DataStore.LoadResource(
				ctx,
				"tenant-a",
				"ticket-summaries",
				env.MessageID,
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal([]byte("open")))

			// A duplicate delivery of the same message is absorbed by the
			// ledger.
			err = tenant.RunInScope(
				ctx,
				tenant.Scope{
					TenantID:      env.TenantID,
					CorrelationID: env.CorrelationID,
				},
				func(ctx context.Context) error {
					p := &messaging.Publisher{Transport: transport}
					return p.Publish(ctx, "events."+env.EventType, env)
				},
			)
			Expect(err).ShouldNot(HaveOccurred())

			Consistently(appliedCount).Should(BeEquivalentTo(1))

			cancelRun()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})

		It("drives projections from the global stream when no transport is configured", func() {
			engine = New(
				WithPersistence(&memorypersistence.Provider{}),
				WithProjection(newSummaryProjection()),
				WithMessageBackoff(backoff.Constant(10*time.Millisecond)),
			)

			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()

			go engine.Run(runCtx)

			store, err := engine.Store(ctx)
			Expect(err).ShouldNot(HaveOccurred())

			err = tenant.Run(ctx, "tenant-a", func(ctx context.Context) error {
				packer := &envelope.Packer{}

				env, err := packer.Pack(ctx, "TicketCreated", []byte(`{}`))
				if err != nil {
					return err
				}

				_, err = store.Append(ctx, "ticket-1", 0, []*envelope.Envelope{env})
				return err
			})
			Expect(err).ShouldNot(HaveOccurred())

			Eventually(appliedCount).Should(BeEquivalentTo(1))
		})
	})
})
