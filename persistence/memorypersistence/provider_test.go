package memorypersistence_test

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/fixtures"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/internal/providertest"
	. "github.com/Broccode/acci-eaf-sub000/persistence/memorypersistence"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Provider", func() {
	providertest.Declare(
		func(ctx context.Context, in providertest.In) providertest.Out {
			return providertest.Out{
				NewProvider: func() (persistence.Provider, func()) {
					return &Provider{}, nil
				},
			}
		},
		nil,
	)

	Describe("func Open()", func() {
		It("returns data stores that share the same data", func() {
			p := &Provider{}

			ds1, err := p.Open(context.Background())
			Expect(err).ShouldNot(HaveOccurred())
			defer ds1.Close()

			ds2, err := p.Open(context.Background())
			Expect(err).ShouldNot(HaveOccurred())
			defer ds2.Close()

			_, err = ds1.AppendEvents(
				context.Background(),
				fixtures.DefaultTenantID,
				"stream-1",
				0,
				fixtures.NewEnvelopes(fixtures.DefaultTenantID, "TicketCreated", 1),
			)
			Expect(err).ShouldNot(HaveOccurred())

			res, err := ds2.OpenStream(
				context.Background(),
				fixtures.DefaultTenantID,
				"stream-1",
				1,
			)
			Expect(err).ShouldNot(HaveOccurred())
			defer res.Close()

			_, ok, err := res.Next(context.Background())
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
		})
	})
})
