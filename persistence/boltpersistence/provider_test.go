package boltpersistence_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/internal/providertest"
	. "github.com/Broccode/acci-eaf-sub000/persistence/boltpersistence"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type FileProvider", func() {
	var dir string

	providertest.Declare(
		func(ctx context.Context, in providertest.In) providertest.Out {
			var err error
			dir, err = os.MkdirTemp("", "bolt-provider-test")
			Expect(err).ShouldNot(HaveOccurred())

			return providertest.Out{
				NewProvider: func() (persistence.Provider, func()) {
					return &FileProvider{
						Path: filepath.Join(dir, "test.boltdb"),
					}, nil
				},
			}
		},
		func() {
			os.RemoveAll(dir)
		},
	)
})
