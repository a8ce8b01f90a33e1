package tenant_test

import (
	"context"
	"errors"

	. "github.com/Broccode/acci-eaf-sub000/tenant"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func With()", func() {
	It("establishes the scope on the returned context", func() {
		ctx := With(
			context.Background(),
			Scope{
				TenantID: "tenant-a",
				UserID:   "user-1",
			},
		)

		s, ok := Current(ctx)
		Expect(ok).To(BeTrue())
		Expect(s.TenantID).To(Equal("tenant-a"))
		Expect(s.UserID).To(Equal("user-1"))
	})

	It("shadows the scope of the parent context", func() {
		parent := With(
			context.Background(),
			Scope{TenantID: "tenant-a"},
		)

		child := With(
			parent,
			Scope{TenantID: "tenant-b"},
		)

		id, _ := ID(child)
		Expect(id).To(Equal("tenant-b"))

		id, _ = ID(parent)
		Expect(id).To(Equal("tenant-a"))
	})

	It("panics if the scope has no tenant ID", func() {
		Expect(func() {
			With(context.Background(), Scope{})
		}).To(Panic())
	})
})

var _ = Describe("func Current()", func() {
	It("returns false if no scope is established", func() {
		_, ok := Current(context.Background())
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("func Require()", func() {
	It("returns the established scope", func() {
		ctx := With(
			context.Background(),
			Scope{TenantID: "tenant-a"},
		)

		s, err := Require(ctx)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(s.TenantID).To(Equal("tenant-a"))
	})

	It("returns a MissingContextError if no scope is established", func() {
		_, err := Require(context.Background())

		var expected MissingContextError
		Expect(errors.As(err, &expected)).To(BeTrue())
	})
})

var _ = Describe("func Run()", func() {
	It("confines the scope to the function's dynamic extent", func() {
		ctx := context.Background()

		err := Run(ctx, "tenant-a", func(ctx context.Context) error {
			id, ok := ID(ctx)
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal("tenant-a"))

			return nil
		})
		Expect(err).ShouldNot(HaveOccurred())

		_, ok := Current(ctx)
		Expect(ok).To(BeFalse())
	})

	It("does not leak the scope when the function fails", func() {
		ctx := context.Background()

		err := Run(ctx, "tenant-a", func(context.Context) error {
			return errors.New("<error>")
		})
		Expect(err).To(MatchError("<error>"))

		_, ok := Current(ctx)
		Expect(ok).To(BeFalse())
	})

	It("snapshots the scope for spawned goroutines", func() {
		var (
			inner context.Context
			done  = make(chan struct{})
		)

		Run(context.Background(), "tenant-a", func(ctx context.Context) error {
			inner = ctx
			close(done)
			return nil
		})

		<-done

		// The goroutine observes the scope that was current when the context
		// was captured, regardless of what the spawning code did afterwards.
		id, ok := ID(inner)
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal("tenant-a"))
	})
})
