package providertest

import (
	"context"
	"sync"
	"time"

	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/fixtures"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

// declareEventTests declares tests for event appending and reading.
func declareEventTests(tc *TestContext) {
	ginkgo.Describe("event records", func() {
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

		ginkgo.Describe("func AppendEvents()", func() {
			ginkgo.It("assigns contiguous 1-based revisions", func() {
				records, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 3),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(records).To(gomega.HaveLen(3))

				for i, rec := range records {
					gomega.Expect(rec.Revision).To(
						gomega.BeEquivalentTo(i + 1),
					)
				}
			})

			ginkgo.It("assigns strictly increasing gap-free global sequences", func() {
				var sequences []uint64

				for i := 0; i < 3; i++ {
					records, err := ds.AppendEvents(
						tc.Context,
						"tenant-a",
						"stream-1",
						uint64(i),
						fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
					)
					gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

					sequences = append(sequences, records[0].GlobalSequence)
				}

				for i, seq := range sequences {
					gomega.Expect(seq).To(
						gomega.BeEquivalentTo(sequences[0] + uint64(i)),
					)
				}
			})

			ginkgo.It("returns a ConflictError if the expected revision is stale", func() {
				_, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				_, err = ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketRenamed", 1),
				)
				gomega.Expect(persistence.IsConflict(err)).To(gomega.BeTrue())
			})

			ginkgo.It("returns a ConflictError if the expected revision is in the future", func() {
				_, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					3,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
				)
				gomega.Expect(persistence.IsConflict(err)).To(gomega.BeTrue())
			})

			ginkgo.It("allows exactly one of two concurrent appends with the same expected revision", func() {
				errs := make(chan error, 2)

				var g sync.WaitGroup
				for i := 0; i < 2; i++ {
					g.Add(1)
					go func() {
						defer g.Done()
						defer ginkgo.GinkgoRecover()

						_, err := ds.AppendEvents(
							tc.Context,
							"tenant-a",
							"stream-1",
							0,
							fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
						)
						errs <- err
					}()
				}
				g.Wait()
				close(errs)

				var successes, conflicts int
				for err := range errs {
					if err == nil {
						successes++
						continue
					}

					gomega.Expect(persistence.IsConflict(err)).To(
						gomega.BeTrue(),
					)
					conflicts++
				}

				gomega.Expect(successes).To(gomega.Equal(1))
				gomega.Expect(conflicts).To(gomega.Equal(1))

				res, err := ds.OpenStream(tc.Context, "tenant-a", "stream-1", 1)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer res.Close()

				rec, ok, err := res.Next(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(rec.Revision).To(gomega.BeEquivalentTo(1))

				_, ok, err = res.Next(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})

			ginkgo.It("persists nothing when the append conflicts", func() {
				_, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				_, err = ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketRenamed", 2),
				)
				gomega.Expect(persistence.IsConflict(err)).To(gomega.BeTrue())

				res, err := ds.OpenStream(tc.Context, "tenant-a", "stream-1", 1)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer res.Close()

				n := 0
				for {
					_, ok, err := res.Next(tc.Context)
					gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
					if !ok {
						break
					}
					n++
				}

				gomega.Expect(n).To(gomega.Equal(1))
			})

			ginkgo.It("keeps streams of different tenants independent", func() {
				_, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 2),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				records, err := ds.AppendEvents(
					tc.Context,
					"tenant-b",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-b", "TicketCreated", 1),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(records[0].Revision).To(gomega.BeEquivalentTo(1))
			})
		})

		ginkgo.Describe("func OpenStream()", func() {
			ginkgo.It("returns only the events of the requested tenant", func() {
				_, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 2),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				_, err = ds.AppendEvents(
					tc.Context,
					"tenant-b",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-b", "TicketCreated", 3),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				res, err := ds.OpenStream(tc.Context, "tenant-a", "stream-1", 1)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer res.Close()

				n := 0
				for {
					rec, ok, err := res.Next(tc.Context)
					gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
					if !ok {
						break
					}

					gomega.Expect(rec.TenantID).To(gomega.Equal("tenant-a"))
					n++
				}

				gomega.Expect(n).To(gomega.Equal(2))
			})

			ginkgo.It("begins at the requested revision", func() {
				_, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 3),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				res, err := ds.OpenStream(tc.Context, "tenant-a", "stream-1", 3)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer res.Close()

				rec, ok, err := res.Next(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(rec.Revision).To(gomega.BeEquivalentTo(3))

				_, ok, err = res.Next(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})

			ginkgo.It("yields an empty result for a stream that does not exist", func() {
				res, err := ds.OpenStream(tc.Context, "tenant-a", "<unknown>", 1)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer res.Close()

				_, ok, err := res.Next(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		})

		ginkgo.Describe("func OpenGlobal()", func() {
			ginkgo.It("returns events from all tenants in global order", func() {
				_, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				_, err = ds.AppendEvents(
					tc.Context,
					"tenant-b",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-b", "TicketCreated", 1),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				cur, err := ds.OpenGlobal(
					tc.Context,
					eventstream.TailToken(),
					false,
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer cur.Close()

				var last uint64
				tenants := map[string]struct{}{}

				for {
					ev, err := cur.Next(tc.Context)
					if err == eventstream.ErrEndOfStream {
						break
					}
					gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

					gomega.Expect(ev.Token.GlobalSequence).To(
						gomega.BeNumerically(">", last),
					)
					last = ev.Token.GlobalSequence
					tenants[ev.Envelope.TenantID] = struct{}{}
				}

				gomega.Expect(tenants).To(gomega.HaveLen(2))
			})

			ginkgo.It("resumes after the position covered by the token", func() {
				records, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 3),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				cur, err := ds.OpenGlobal(
					tc.Context,
					eventstream.Token{
						GlobalSequence: records[1].GlobalSequence,
					},
					false,
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer cur.Close()

				ev, err := cur.Next(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ev.Token.GlobalSequence).To(
					gomega.Equal(records[2].GlobalSequence),
				)
			})

			ginkgo.It("returns ErrEndOfStream at the head when not blocking", func() {
				cur, err := ds.OpenGlobal(
					tc.Context,
					eventstream.TailToken(),
					false,
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer cur.Close()

				_, err = cur.Next(tc.Context)
				gomega.Expect(err).To(gomega.Equal(eventstream.ErrEndOfStream))
			})

			ginkgo.It("wakes a blocked cursor when events are appended", func() {
				cur, err := ds.OpenGlobal(
					tc.Context,
					eventstream.TailToken(),
					true,
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer cur.Close()

				go func() {
					time.Sleep(50 * time.Millisecond)

					ds.AppendEvents(
						tc.Context,
						"tenant-a",
						"stream-1",
						0,
						fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
					)
				}()

				ev, err := cur.Next(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ev.Envelope.EventType).To(
					gomega.Equal("TicketCreated"),
				)
			})

			ginkgo.It("unblocks promptly when the context is canceled", func() {
				ctx, cancel := context.WithCancel(tc.Context)
				defer cancel()

				cur, err := ds.OpenGlobal(
					ctx,
					eventstream.TailToken(),
					true,
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer cur.Close()

				go func() {
					time.Sleep(50 * time.Millisecond)
					cancel()
				}()

				_, err = cur.Next(ctx)
				gomega.Expect(err).To(gomega.Equal(context.Canceled))
			})
		})

		ginkgo.Describe("func NextGlobalSequence()", func() {
			ginkgo.It("returns the sequence of the next event to be committed", func() {
				before, err := ds.NextGlobalSequence(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				records, err := ds.AppendEvents(
					tc.Context,
					"tenant-a",
					"stream-1",
					0,
					fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(records[0].GlobalSequence).To(gomega.Equal(before))

				after, err := ds.NextGlobalSequence(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(after).To(gomega.Equal(before + 1))
			})
		})
	})
}
