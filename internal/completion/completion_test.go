package completion

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Completer", func() {
	var (
		home string
		c    *Completer
	)

	BeforeEach(func() {
		var err error
		home, err = os.MkdirTemp("", "ade-launchd-completion-*")
		Expect(err).NotTo(HaveOccurred())
		home, err = filepath.EvalSymlinks(home)
		Expect(err).NotTo(HaveOccurred())

		for _, d := range []string{"Code", "Configs", "Documents", "cache", ".hidden", "secret/inner", "links"} {
			Expect(os.MkdirAll(filepath.Join(home, d), 0755)).To(Succeed())
		}
		Expect(os.WriteFile(filepath.Join(home, "cfile"), nil, 0644)).To(Succeed())
		Expect(os.Symlink(filepath.Join(home, "Code"), filepath.Join(home, "links", "Zed"))).To(Succeed())
		Expect(os.Symlink(filepath.Join(home, "secret"), filepath.Join(home, "links", "locked"))).To(Succeed())

		policy := Policy{Allow: []string{home}, Deny: []string{filepath.Join(home, "secret")}}
		c = New(policy, home, home)
	})

	AfterEach(func() {
		os.RemoveAll(home)
	})

	Describe("Complete", func() {
		It("should list matching directories case-insensitively in sorted order", func() {
			Expect(c.Complete("~/c")).To(Equal([]string{"~/Code", "~/Configs", "~/cache"}))
		})

		It("should list a whole directory when the input ends with a separator", func() {
			Expect(c.Complete("~/")).To(Equal([]string{
				"~/Code", "~/Configs", "~/Documents", "~/cache", "~/links", "~/secret",
			}))
		})

		It("should keep absolute notation for absolute input", func() {
			Expect(c.Complete(filepath.Join(home, "Doc"))).To(Equal([]string{filepath.Join(home, "Documents")}))
		})

		It("should render relative input with the typed directory part", func() {
			Expect(c.Complete("Co")).To(Equal([]string{"Code", "Configs"}))
			Expect(c.Complete("./Do")).To(Equal([]string{"./Documents"}))
		})

		It("should follow symlinked directories", func() {
			Expect(c.Complete("~/links/")).To(Equal([]string{"~/links/Zed", "~/links/locked"}))
		})

		It("should refuse denied directories", func() {
			Expect(c.Complete("~/secret/")).To(BeEmpty())
		})

		It("should refuse a symlink that resolves into a denied directory", func() {
			Expect(c.Complete("~/links/locked/")).To(BeEmpty())
		})

		It("should refuse directories outside the allow list", func() {
			Expect(c.Complete("/etc/")).To(BeEmpty())
		})

		It("should return nothing for a missing directory", func() {
			Expect(c.Complete("~/missing/")).To(BeEmpty())
		})

		It("should return nothing for empty input", func() {
			Expect(c.Complete("")).To(BeEmpty())
		})

		It("should only shorten paths on a home directory boundary", func() {
			partial := New(Policy{Allow: []string{home}}, filepath.Join(home, "Co"), home)
			Expect(partial.Complete("~/../Co")).To(Equal([]string{
				filepath.Join(home, "Code"), filepath.Join(home, "Configs"),
			}))
		})
	})

	Describe("Cycle", func() {
		It("should walk forward and wrap around", func() {
			first, ok := c.Cycle("~/Co", Forward)
			Expect(ok).To(BeTrue())
			Expect(first).To(Equal("~/Code"))

			second, _ := c.Cycle(first, Forward)
			Expect(second).To(Equal("~/Configs"))

			third, _ := c.Cycle(second, Forward)
			Expect(third).To(Equal("~/Code"))
		})

		It("should start from the last match going backward", func() {
			got, ok := c.Cycle("~/Co", Backward)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal("~/Configs"))

			got, _ = c.Cycle(got, Backward)
			Expect(got).To(Equal("~/Code"))
		})

		It("should keep cycling on the original input", func() {
			c.Cycle("~/Co", Forward)
			got, _ := c.Cycle("~/Co", Forward)
			Expect(got).To(Equal("~/Configs"))
		})

		It("should recompute when the prefix changes", func() {
			c.Cycle("~/Co", Forward)
			got, ok := c.Cycle("~/D", Forward)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal("~/Documents"))
		})

		It("should report no match", func() {
			_, ok := c.Cycle("~/zzz", Forward)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Advance", func() {
		It("should report nothing before any completion", func() {
			_, ok := c.Advance(Forward)
			Expect(ok).To(BeFalse())
		})

		It("should start over after Complete", func() {
			c.Complete("~/Co")
			c.Advance(Forward)
			c.Advance(Forward)
			c.Complete("~/Co")
			got, _ := c.Advance(Forward)
			Expect(got).To(Equal("~/Code"))
		})

		It("should forget candidates on Reset", func() {
			c.Complete("~/Co")
			c.Reset()
			Expect(c.Candidates()).To(BeEmpty())
			_, ok := c.Advance(Backward)
			Expect(ok).To(BeFalse())
		})
	})
})

var _ = Describe("Policy", func() {
	p := DefaultPolicy("/Users/me")

	DescribeTable("Permits",
		func(dir string, want bool) {
			Expect(p.Permits(dir)).To(Equal(want))
		},
		Entry("home", "/Users/me/Code", true),
		Entry("applications", "/Applications", true),
		Entry("other users", "/Users/other", true),
		Entry("etc", "/etc", false),
		Entry("under var", "/var/log", false),
		Entry("ssh keys", "/Users/me/.ssh", false),
		Entry("keychains", "/Users/me/Library/Keychains/x", false),
		Entry("sibling sharing a prefix", "/Applicationsx", false),
		Entry("traversal out of home", "/Users/me/../../etc", false),
		Entry("root", "/", false),
	)
})
