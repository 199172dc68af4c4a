package ranking

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/0xADE/ade-launchd/internal/indexer"
)

func catalog(names ...string) []indexer.Application {
	apps := make([]indexer.Application, 0, len(names))
	for i, n := range names {
		apps = append(apps, indexer.NewApplication(fmt.Sprint(i), n, "/Applications/"+n+".app", indexer.KindStandard))
	}
	indexer.SortByName(apps)
	return apps
}

func appNames(apps []indexer.Application) []string {
	out := make([]string, 0, len(apps))
	for _, a := range apps {
		out = append(out, a.Name)
	}
	return out
}

var _ = Describe("Search", func() {
	Context("with an empty query", func() {
		apps := catalog("Alpha", "Bravo", "Charlie")

		It("should return the first entries in catalog order", func() {
			Expect(appNames(Search("", apps, 2))).To(Equal([]string{"Alpha", "Bravo"}))
		})

		It("should return the whole catalog when it is smaller than the limit", func() {
			Expect(Search("", apps, DefaultLimit)).To(HaveLen(3))
		})
	})

	Context("with a non-positive limit", func() {
		It("should return nothing", func() {
			Expect(Search("a", catalog("Alpha"), 0)).To(BeEmpty())
		})
	})

	Context("with one candidate per tier", func() {
		apps := catalog(
			"Big Good Clean Code",  // keyword substring: bgcc
			"GCC",                  // exact
			"gcc-tools",            // prefix
			"gecko cc",             // fuzzy
			"Good Clean Code X",    // keyword prefix: gccx
			"Google Chrome Canary", // keyword exact: gcc
			"libgcc",               // substring
			"Unrelated",
		)

		It("should order results by tier", func() {
			Expect(appNames(Search("gcc", apps, DefaultLimit))).To(Equal([]string{
				"GCC",
				"gcc-tools",
				"libgcc",
				"Google Chrome Canary",
				"Good Clean Code X",
				"Big Good Clean Code",
				"gecko cc",
			}))
		})

		It("should be case insensitive", func() {
			Expect(appNames(Search("GCC", apps, 1))).To(Equal([]string{"GCC"}))
		})

		It("should truncate to the limit", func() {
			Expect(Search("gcc", apps, 3)).To(HaveLen(3))
		})
	})

	Context("with equal scores", func() {
		apps := catalog("Mail Beta", "Mail Alpha")

		It("should keep catalog order", func() {
			Expect(appNames(Search("mail", apps, DefaultLimit))).To(Equal([]string{"Mail Alpha", "Mail Beta"}))
		})
	})
})

var _ = Describe("Score", func() {
	app := func(name string) indexer.Application {
		return indexer.NewApplication("x", name, "/x", indexer.KindStandard)
	}

	It("should reward shorter prefix queries", func() {
		short, _ := Score("s", app("Safari"))
		long, _ := Score("safar", app("Safari"))
		Expect(short).To(Equal(999.0))
		Expect(long).To(Equal(995.0))
	})

	It("should keep very long prefix queries above the substring tier", func() {
		name := strings.Repeat("a", 120)
		s, ok := Score(name[:110], app(name))
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal(900.0))
	})

	It("should reject a query that is not a subsequence", func() {
		_, ok := Score("bd", app("cde"))
		Expect(ok).To(BeFalse())
	})

	It("should count only the final consecutive streak", func() {
		// a,b form a streak of two, the gap before d restarts it at one:
		// 3/5*100 + 1*10. Counting the best streak would give 80.
		s, ok := Score("abd", app("abxxd"))
		Expect(ok).To(BeTrue())
		Expect(s).To(BeNumerically("~", 70.0, 1e-9))
	})

	It("should reward a streak that ends the match", func() {
		s, ok := Score("xcd", app("axbcd"))
		Expect(ok).To(BeTrue())
		Expect(s).To(BeNumerically("~", 80.0, 1e-9))
	})

	It("should let a dense fuzzy match exceed the keyword tiers", func() {
		// Known gap: fuzzy scores are not clamped below 500.
		run := strings.Repeat("a", 45)
		s, ok := Score("x"+run, app("x-"+run))
		Expect(ok).To(BeTrue())
		Expect(s).To(BeNumerically(">", 500.0))
	})
})
