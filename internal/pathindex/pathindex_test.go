package pathindex

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("PathIndex", func() {
	var (
		pi           *PathIndex
		testCacheDir string
		now          time.Time
	)

	ginkgo.BeforeEach(func() {
		var err error
		testCacheDir, err = os.MkdirTemp("", "ade-pathindex-test-*")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		pi, err = Open(testCacheDir)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(pi).NotTo(gomega.BeNil())

		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		pi.now = func() time.Time { return now }
	})

	ginkgo.AfterEach(func() {
		if pi != nil {
			gomega.Expect(pi.Close()).To(gomega.Succeed())
		}
		if testCacheDir != "" {
			gomega.Expect(os.RemoveAll(testCacheDir)).To(gomega.Succeed())
		}
	})

	ginkgo.Describe("Open", func() {
		ginkgo.It("should create the database file under the ade directory", func() {
			gomega.Expect(filepath.Join(testCacheDir, "ade")).To(gomega.BeADirectory())
			gomega.Expect(filepath.Join(testCacheDir, "ade", "launchd.path-index")).To(gomega.BeAnExistingFile())
		})
	})

	ginkgo.Describe("Touch", func() {
		ginkgo.It("should start a new path at frequency one", func() {
			e, err := pi.Touch("/Users/me/Code")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(e.Frequency).To(gomega.Equal(uint64(1)))
			gomega.Expect(e.LastAccessed.Equal(now)).To(gomega.BeTrue())
		})

		ginkgo.It("should increment frequency and refresh the access time", func() {
			_, err := pi.Touch("/a")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			now = now.Add(time.Hour)
			e, err := pi.Touch("/a")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(e.Frequency).To(gomega.Equal(uint64(2)))

			got, ok := pi.Get("/a")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(got.Frequency).To(gomega.Equal(uint64(2)))
			gomega.Expect(got.LastAccessed.Equal(now)).To(gomega.BeTrue())
		})

		ginkgo.It("should survive reopening", func() {
			_, err := pi.Touch("/a")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(pi.Close()).To(gomega.Succeed())

			pi, err = Open(testCacheDir)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			got, ok := pi.Get("/a")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(got.Frequency).To(gomega.Equal(uint64(1)))
		})
	})

	ginkgo.Describe("Get", func() {
		ginkgo.It("should report unknown paths", func() {
			_, ok := pi.Get("/nope")
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("Top", func() {
		ginkgo.BeforeEach(func() {
			// /old: used 10 times 30 days ago, score 10/e
			now = now.Add(-30 * 24 * time.Hour)
			for i := 0; i < 10; i++ {
				_, err := pi.Touch("/old")
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
			}
			now = now.Add(30 * 24 * time.Hour)
			for i := 0; i < 5; i++ {
				_, err := pi.Touch("/fresh")
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
			}
			_, err := pi.Touch("/b")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			_, err = pi.Touch("/a")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
		})

		ginkgo.It("should rank by decayed score, ties by path", func() {
			top := pi.Top(10)
			paths := make([]string, 0, len(top))
			for _, e := range top {
				paths = append(paths, e.Path)
			}
			gomega.Expect(paths).To(gomega.Equal([]string{"/fresh", "/old", "/a", "/b"}))
		})

		ginkgo.It("should honor the limit", func() {
			gomega.Expect(pi.Top(2)).To(gomega.HaveLen(2))
			gomega.Expect(pi.Top(0)).To(gomega.BeEmpty())
		})

		ginkgo.It("should prune the lowest scores", func() {
			removed, err := pi.Prune(2)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(removed).To(gomega.Equal(2))
			gomega.Expect(pi.Top(10)).To(gomega.HaveLen(2))
			_, ok := pi.Get("/b")
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("should not prune below the limit", func() {
			removed, err := pi.Prune(10)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(removed).To(gomega.BeZero())
		})
	})

	ginkgo.Describe("Close", func() {
		ginkgo.It("should handle multiple close calls gracefully", func() {
			gomega.Expect(pi.Close()).To(gomega.Succeed())
			gomega.Expect(pi.Close()).To(gomega.Succeed())

			_, err := pi.Touch("/a")
			gomega.Expect(err).To(gomega.MatchError(ErrClosed))
			pi = nil
		})

		ginkgo.It("should let Close run while touches are in flight", func() {
			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer ginkgo.GinkgoRecover()
					defer wg.Done()
					for j := 0; j < 200; j++ {
						if _, err := pi.Touch("/x"); err != nil {
							gomega.Expect(err).To(gomega.MatchError(ErrClosed))
						}
						pi.Top(1)
					}
				}()
			}
			gomega.Expect(pi.Close()).To(gomega.Succeed())
			wg.Wait()

			_, ok := pi.Get("/x")
			gomega.Expect(ok).To(gomega.BeFalse())
			pi = nil
		})

		ginkgo.It("should handle nil database gracefully", func() {
			gomega.Expect((&PathIndex{}).Close()).To(gomega.Succeed())
		})
	})
})

var _ = ginkgo.Describe("Entry", func() {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	ginkgo.It("should score a fresh entry by its frequency", func() {
		gomega.Expect(Entry{Frequency: 3, LastAccessed: now}.Score(now)).To(gomega.BeNumerically("~", 3.0, 1e-9))
	})

	ginkgo.It("should decay by e over thirty days", func() {
		old := Entry{Frequency: 10, LastAccessed: now.Add(-30 * 24 * time.Hour)}
		gomega.Expect(old.Score(now)).To(gomega.BeNumerically("~", 3.6788, 1e-3))
		gomega.Expect(old.Score(now)).To(gomega.BeNumerically("<", Entry{Frequency: 5, LastAccessed: now}.Score(now)))
	})
})
