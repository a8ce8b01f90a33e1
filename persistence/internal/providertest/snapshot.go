package providertest

import (
	"time"

	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

// declareSnapshotTests declares tests for snapshot storage.
func declareSnapshotTests(tc *TestContext) {
	ginkgo.Describe("snapshots", func() {
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

		ginkgo.Describe("func SaveSnapshot()", func() {
			ginkgo.It("supersedes the existing snapshot for the stream", func() {
				err := ds.SaveSnapshot(
					tc.Context,
					persistence.Snapshot{
						TenantID:   "tenant-a",
						StreamID:   "stream-1",
						Revision:   3,
						State:      []byte("v1"),
						RecordedAt: time.Now().UTC(),
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = ds.SaveSnapshot(
					tc.Context,
					persistence.Snapshot{
						TenantID:   "tenant-a",
						StreamID:   "stream-1",
						Revision:   7,
						State:      []byte("v2"),
						RecordedAt: time.Now().UTC(),
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				snap, ok, err := ds.LoadSnapshot(
					tc.Context,
					"tenant-a",
					"stream-1",
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(snap.Revision).To(gomega.BeEquivalentTo(7))
				gomega.Expect(snap.State).To(gomega.Equal([]byte("v2")))
			})
		})

		ginkgo.Describe("func LoadSnapshot()", func() {
			ginkgo.It("returns false if no snapshot exists", func() {
				_, ok, err := ds.LoadSnapshot(
					tc.Context,
					"tenant-a",
					"stream-1",
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})

			ginkgo.It("does not return another tenant's snapshot", func() {
				err := ds.SaveSnapshot(
					tc.Context,
					persistence.Snapshot{
						TenantID:   "tenant-a",
						StreamID:   "stream-1",
						Revision:   3,
						State:      []byte("v1"),
						RecordedAt: time.Now().UTC(),
					},
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				_, ok, err := ds.LoadSnapshot(
					tc.Context,
					"tenant-b",
					"stream-1",
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		})
	})
}
