// Package providertest contains a suite of behavioral tests that apply to
// every implementation of the persistence contract.
package providertest

import (
	"context"
	"time"

	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

// In is a container for values provided by the test suite to the
// provider-specific initialization code.
type In struct{}

// Out is a container for values that are provided by the provider-specific
// initialization code to the test suite.
type Out struct {
	// NewProvider is a function that creates a new provider.
	NewProvider func() (p persistence.Provider, close func())

	// TestTimeout is the maximum duration allowed for each test.
	TestTimeout time.Duration
}

// DefaultTestTimeout is the default test timeout.
const DefaultTestTimeout = 10 * time.Second

// TestContext encapsulates the shared state passed to the tests for each
// sub-system.
type TestContext struct {
	Context context.Context
	In      In
	Out     Out
}

// SetupDataStore opens a new data store from a new provider.
func (tc *TestContext) SetupDataStore() (persistence.DataStore, func()) {
	p, close := tc.Out.NewProvider()

	ds, err := p.Open(tc.Context)
	if err != nil {
		if close != nil {
			close()
		}

		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	}

	return ds, func() {
		ds.Close()

		if close != nil {
			close()
		}
	}
}

// Declare declares generic behavioral tests for a specific persistence
// provider implementation.
func Declare(
	before func(context.Context, In) Out,
	after func(),
) {
	var (
		tc     TestContext
		cancel func()
	)

	ginkgo.Context("standard provider test suite", func() {
		ginkgo.BeforeEach(func() {
			setupCtx, cancelSetup := context.WithTimeout(
				context.Background(),
				10*time.Second,
			)
			defer cancelSetup()

			tc.In = In{}
			tc.Out = before(setupCtx, tc.In)

			if tc.Out.TestTimeout <= 0 {
				tc.Out.TestTimeout = DefaultTestTimeout
			}

			tc.Context, cancel = context.WithTimeout(
				context.Background(),
				tc.Out.TestTimeout,
			)
		})

		ginkgo.AfterEach(func() {
			cancel()

			if after != nil {
				after()
			}
		})

		declareEventTests(&tc)
		declareSnapshotTests(&tc)
		declareTransactionTests(&tc)
	})
}
