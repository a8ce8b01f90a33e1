package eventstore_test

import (
	"context"
	"errors"
	"time"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	. "github.com/Broccode/acci-eaf-sub000/eventstore"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/fixtures"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/memorypersistence"
	"github.com/Broccode/acci-eaf-sub000/tenant"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Store", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		ds     persistence.DataStore
		store  *Store
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		p := &memorypersistence.Provider{}

		var err error
		ds, err = p.Open(ctx)
		Expect(err).ShouldNot(HaveOccurred())

		store = &Store{DataStore: ds}
	})

	AfterEach(func() {
		ds.Close()
		cancel()
	})

	scoped := func(tenantID string) context.Context {
		return tenant.With(ctx, tenant.Scope{TenantID: tenantID})
	}

	Describe("func Append()", func() {
		It("appends within the calling tenant's scope", func() {
			records, err := store.Append(
				scoped("tenant-a"),
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-a", "TicketCreated", 2),
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].TenantID).To(Equal("tenant-a"))
			Expect(records[1].Revision).To(BeEquivalentTo(2))
		})

		It("treats an append of no events as a no-op", func() {
			records, err := store.Append(
				scoped("tenant-a"),
				"ticket-1",
				0,
				nil,
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(records).To(BeEmpty())

			tok, err := store.HeadToken(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(tok).To(Equal(eventstream.TailToken()))
		})

		It("fails without a tenant scope", func() {
			_, err := store.Append(
				ctx,
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
			)

			var expected tenant.MissingContextError
			Expect(errors.As(err, &expected)).To(BeTrue())
		})

		It("refuses envelopes belonging to another tenant", func() {
			_, err := store.Append(
				scoped("tenant-a"),
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-b", "TicketCreated", 1),
			)
			Expect(err).Should(HaveOccurred())
			Expect(persistence.IsConflict(err)).To(BeFalse())
		})

		It("propagates optimistic concurrency conflicts", func() {
			_, err := store.Append(
				scoped("tenant-a"),
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
			)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = store.Append(
				scoped("tenant-a"),
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
			)
			Expect(persistence.IsConflict(err)).To(BeTrue())

			var conflict persistence.ConflictError
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.TenantID).To(Equal("tenant-a"))
			Expect(conflict.StreamID).To(Equal("ticket-1"))
		})
	})

	Describe("func ReadStream()", func() {
		It("reads only the calling tenant's stream", func() {
			_, err := store.Append(
				scoped("tenant-a"),
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-a", "TicketCreated", 2),
			)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = store.Append(
				scoped("tenant-b"),
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-b", "TicketCreated", 1),
			)
			Expect(err).ShouldNot(HaveOccurred())

			res, err := store.ReadStream(scoped("tenant-b"), "ticket-1", 1)
			Expect(err).ShouldNot(HaveOccurred())
			defer res.Close()

			rec, ok, err := res.Next(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(rec.TenantID).To(Equal("tenant-b"))

			_, ok, err = res.Next(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("func ReadFrom()", func() {
		It("reads all tenants' events in global order", func() {
			_, err := store.Append(
				scoped("tenant-a"),
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-a", "TicketCreated", 1),
			)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = store.Append(
				scoped("tenant-b"),
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-b", "TicketCreated", 1),
			)
			Expect(err).ShouldNot(HaveOccurred())

			cur, err := store.ReadFrom(ctx, eventstream.TailToken(), false)
			Expect(err).ShouldNot(HaveOccurred())
			defer cur.Close()

			ev, err := cur.Next(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ev.Token.GlobalSequence).To(BeEquivalentTo(1))

			ev, err = cur.Next(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ev.Token.GlobalSequence).To(BeEquivalentTo(2))

			_, err = cur.Next(ctx)
			Expect(err).To(Equal(eventstream.ErrEndOfStream))
		})
	})

	Describe("func StoreSnapshot()", func() {
		It("round-trips through LoadSnapshot() within the tenant's scope", func() {
			err := store.StoreSnapshot(
				scoped("tenant-a"),
				"ticket-1",
				3,
				[]byte("<state>"),
			)
			Expect(err).ShouldNot(HaveOccurred())

			snap, ok, err := store.LoadSnapshot(scoped("tenant-a"), "ticket-1")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(snap.Revision).To(BeEquivalentTo(3))
			Expect(snap.State).To(Equal([]byte("<state>")))

			_, ok, err = store.LoadSnapshot(scoped("tenant-b"), "ticket-1")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("func HeadToken()", func() {
		It("covers every committed event", func() {
			tok, err := store.HeadToken(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(tok).To(Equal(eventstream.TailToken()))

			records, err := store.Append(
				scoped("tenant-a"),
				"ticket-1",
				0,
				fixtures.NewEnvelopes("tenant-a", "TicketCreated", 2),
			)
			Expect(err).ShouldNot(HaveOccurred())

			tok, err = store.HeadToken(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(tok.GlobalSequence).To(
				Equal(records[1].GlobalSequence),
			)
		})
	})
})

var _ = Describe("type Store (envelope compatibility)", func() {
	It("rejects an envelope whose tenant differs from the scope", func() {
		p := &memorypersistence.Provider{}

		ds, err := p.Open(context.Background())
		Expect(err).ShouldNot(HaveOccurred())
		defer ds.Close()

		store := &Store{DataStore: ds}

		env := &envelope.Envelope{
			MessageID: "<id>",
			TenantID:  "tenant-b",
			EventType: "TicketCreated",
			CreatedAt: time.Now(),
		}

		ctx := tenant.With(
			context.Background(),
			tenant.Scope{TenantID: "tenant-a"},
		)

		_, err = store.Append(ctx, "ticket-1", 0, []*envelope.Envelope{env})
		Expect(err).Should(HaveOccurred())
	})
})
