package projection_test

import (
	"github.com/Broccode/acci-eaf-sub000/fixtures"
	. "github.com/Broccode/acci-eaf-sub000/projection"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Registry", func() {
	Describe("func Register()", func() {
		It("panics if a handler with the same name is already registered", func() {
			r := &Registry{}
			r.Register(&fixtures.ProjectionHandler{NameValue: "ticket-summary"})

			Expect(func() {
				r.Register(&fixtures.ProjectionHandler{NameValue: "ticket-summary"})
			}).To(Panic())
		})

	})

	Describe("func Get()", func() {
		It("returns the handler with the given name", func() {
			h := &fixtures.ProjectionHandler{NameValue: "ticket-summary"}

			r := &Registry{}
			r.Register(h)

			got, ok := r.Get("ticket-summary")
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(h))

			_, ok = r.Get("<unknown>")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("func Handlers()", func() {
		It("returns the handlers ordered by name", func() {
			r := &Registry{}
			r.Register(&fixtures.ProjectionHandler{NameValue: "ticket-summary"})
			r.Register(&fixtures.ProjectionHandler{NameValue: "ticket-audit"})

			handlers := r.Handlers()
			Expect(handlers).To(HaveLen(2))
			Expect(handlers[0].Name()).To(Equal("ticket-audit"))
			Expect(handlers[1].Name()).To(Equal("ticket-summary"))
		})
	})

	Describe("func HandlersFor()", func() {
		It("routes events by type", func() {
			r := &Registry{}
			r.Register(
				&fixtures.ProjectionHandler{NameValue: "ticket-summary"},
				"TicketCreated",
				"TicketClosed",
			)
			r.Register(&fixtures.ProjectionHandler{NameValue: "ticket-audit"})

			handlers := r.HandlersFor("TicketCreated")
			Expect(handlers).To(HaveLen(2))

			handlers = r.HandlersFor("TicketEscalated")
			Expect(handlers).To(HaveLen(1))
			Expect(handlers[0].Name()).To(Equal("ticket-audit"))
		})
	})

	Describe("func EventTypes()", func() {
		It("returns the registered event types, or nil for an unfiltered handler", func() {
			r := &Registry{}
			r.Register(
				&fixtures.ProjectionHandler{NameValue: "ticket-summary"},
				"TicketClosed",
				"TicketCreated",
			)
			r.Register(&fixtures.ProjectionHandler{NameValue: "ticket-audit"})

			Expect(r.EventTypes("ticket-summary")).To(Equal(
				[]string{"TicketClosed", "TicketCreated"},
			))
			Expect(r.EventTypes("ticket-audit")).To(BeNil())
		})
	})
})
