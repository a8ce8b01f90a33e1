package providertest

import (
	"time"

	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

// declareTransactionTests declares tests for the projection transaction, the
// dedup ledger and read-model resources.
func declareTransactionTests(tc *TestContext) {
	ginkgo.Describe("projection transactions", func() {
		var (
			ds       persistence.DataStore
			teardown func()
		)

		ginkgo.BeforeEach(func() {
			ds, teardown = tc.SetupDataStore()
		})

		ginkgo.AfterEach(func() {
			teardown()
		})

		ginkgo.Describe("func MarkProcessed()", func() {
			ginkgo.It("returns false once the event is marked and committed", func() {
				err := persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						ok, err := tx.MarkProcessed(
							tc.Context,
							"ticket-summary",
							"<event-1>",
							"tenant-a",
						)
						gomega.Expect(ok).To(gomega.BeTrue())
						return err
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						ok, err := tx.MarkProcessed(
							tc.Context,
							"ticket-summary",
							"<event-1>",
							"tenant-a",
						)
						gomega.Expect(ok).To(gomega.BeFalse())
						return err
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			})

			ginkgo.It("leaves the event unmarked if the transaction is rolled-back", func() {
				tx, err := ds.Begin(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				ok, err := tx.MarkProcessed(
					tc.Context,
					"ticket-summary",
					"<event-1>",
					"tenant-a",
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())

				err = tx.Rollback()
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						ok, err := tx.MarkProcessed(
							tc.Context,
							"ticket-summary",
							"<event-1>",
							"tenant-a",
						)
						gomega.Expect(ok).To(gomega.BeTrue())
						return err
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			})

			ginkgo.It("tracks each projector and tenant separately", func() {
				err := persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						ok, err := tx.MarkProcessed(
							tc.Context,
							"ticket-summary",
							"<event-1>",
							"tenant-a",
						)
						gomega.Expect(ok).To(gomega.BeTrue())
						return err
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						ok, err := tx.MarkProcessed(
							tc.Context,
							"ticket-audit",
							"<event-1>",
							"tenant-a",
						)
						gomega.Expect(ok).To(gomega.BeTrue())

						ok, err2 := tx.MarkProcessed(
							tc.Context,
							"ticket-summary",
							"<event-1>",
							"tenant-b",
						)
						gomega.Expect(ok).To(gomega.BeTrue())
						gomega.Expect(err2).ShouldNot(gomega.HaveOccurred())

						return err
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			})
		})

		ginkgo.Describe("func SaveResource()", func() {
			ginkgo.It("makes the value visible only after commit", func() {
				tx, err := ds.Begin(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer tx.Rollback()

				err = tx.SaveResource(
					tc.Context,
					"tenant-a",
					"ticket-summaries",
					"ticket-1",
					[]byte("open"),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = tx.Commit(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				v, ok, err := ds.LoadResource(
					tc.Context,
					"tenant-a",
					"ticket-summaries",
					"ticket-1",
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(v).To(gomega.Equal([]byte("open")))
			})

			ginkgo.It("does not apply writes from a rolled-back transaction", func() {
				tx, err := ds.Begin(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = tx.SaveResource(
					tc.Context,
					"tenant-a",
					"ticket-summaries",
					"ticket-1",
					[]byte("open"),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = tx.Rollback()
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				_, ok, err := ds.LoadResource(
					tc.Context,
					"tenant-a",
					"ticket-summaries",
					"ticket-1",
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		})

		ginkgo.Describe("func DeleteResource()", func() {
			ginkgo.It("removes the resource", func() {
				err := persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						return tx.SaveResource(
							tc.Context,
							"tenant-a",
							"ticket-summaries",
							"ticket-1",
							[]byte("open"),
						)
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						return tx.DeleteResource(
							tc.Context,
							"tenant-a",
							"ticket-summaries",
							"ticket-1",
						)
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				_, ok, err := ds.LoadResource(
					tc.Context,
					"tenant-a",
					"ticket-summaries",
					"ticket-1",
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		})

		ginkgo.Describe("func PruneProcessedEvents()", func() {
			ginkgo.It("allows a pruned event to be applied again", func() {
				err := persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						_, err := tx.MarkProcessed(
							tc.Context,
							"ticket-summary",
							"<event-1>",
							"tenant-a",
						)
						return err
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				n, err := ds.PruneProcessedEvents(
					tc.Context,
					time.Now().Add(time.Hour),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(n).To(gomega.BeEquivalentTo(1))

				err = persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						ok, err := tx.MarkProcessed(
							tc.Context,
							"ticket-summary",
							"<event-1>",
							"tenant-a",
						)
						gomega.Expect(ok).To(gomega.BeTrue())
						return err
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			})

			ginkgo.It("retains entries recorded after the cutoff", func() {
				err := persistence.WithTransaction(
					tc.Context,
					ds,
					func(tx persistence.Transaction) error {
						_, err := tx.MarkProcessed(
							tc.Context,
							"ticket-summary",
							"<event-1>",
							"tenant-a",
						)
						return err
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				n, err := ds.PruneProcessedEvents(
					tc.Context,
					time.Now().Add(-time.Hour),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(n).To(gomega.BeZero())
			})
		})
	})
}
