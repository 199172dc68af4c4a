// Package ranking scores applications against a partial query.
//
// Scoring is tiered: the first tier an entry satisfies decides its score.
//
//	1000  name equals query
//	 9xx  name starts with query (shorter queries score higher)
//	 800  name contains query
//	 700  a keyword equals query
//	 600  a keyword starts with query
//	 500  a keyword contains query
//	   *  fuzzy subsequence match against the name
//
// Fuzzy scores are not clamped below 500. A short name that matches densely
// can outscore the keyword tiers; this is accepted behavior.
package ranking

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/0xADE/ade-launchd/internal/indexer"
)

const (
	DefaultLimit = 8

	scoreExact         = 1000.0
	scorePrefix        = 900.0
	scoreSubstring     = 800.0
	scoreKeywordExact  = 700.0
	scoreKeywordPrefix = 600.0
	scoreKeywordSubstr = 500.0
)

type scoredApp struct {
	app   indexer.Application
	score float64
}

// Search returns at most limit applications matching query, best first.
// An empty query returns the first limit applications in input order.
func Search(query string, apps []indexer.Application, limit int) []indexer.Application {
	if limit <= 0 {
		return nil
	}

	if query == "" {
		n := min(limit, len(apps))
		out := make([]indexer.Application, n)
		copy(out, apps[:n])
		return out
	}

	q := strings.ToLower(query)
	scored := make([]scoredApp, 0, 32)
	for _, app := range apps {
		if s, ok := score(q, app); ok {
			scored = append(scored, scoredApp{app: app, score: s})
		}
	}

	// Stable: equal scores keep catalog order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	n := min(limit, len(scored))
	out := make([]indexer.Application, n)
	for i := 0; i < n; i++ {
		out[i] = scored[i].app
	}
	return out
}

// Score reports how well app matches query and whether it matches at all.
func Score(query string, app indexer.Application) (float64, bool) {
	return score(strings.ToLower(query), app)
}

func score(q string, app indexer.Application) (float64, bool) {
	name := strings.ToLower(app.Name)

	if name == q {
		return scoreExact, true
	}
	if strings.HasPrefix(name, q) {
		bonus := max(0, 100-utf8.RuneCountInString(q))
		return scorePrefix + float64(bonus), true
	}
	if strings.Contains(name, q) {
		return scoreSubstring, true
	}

	for _, kw := range app.Keywords {
		if kw == q {
			return scoreKeywordExact, true
		}
	}
	for _, kw := range app.Keywords {
		if strings.HasPrefix(kw, q) {
			return scoreKeywordPrefix, true
		}
	}
	for _, kw := range app.Keywords {
		if strings.Contains(kw, q) {
			return scoreKeywordSubstr, true
		}
	}

	return fuzzyScore(q, name)
}

// fuzzyScore requires every query rune to appear in target in order.
//
// The score is (matched/len(target))*100 + run*10 where run is the length of
// the consecutive streak in progress when the last query rune matched. Earlier,
// longer streaks do not count.
func fuzzyScore(query, target string) (float64, bool) {
	qr := []rune(query)
	tr := []rune(target)
	if len(qr) == 0 || len(tr) == 0 {
		return 0, false
	}

	qi := 0
	matched := 0
	run := 0
	lastMatch := -1

	for ti, r := range tr {
		if qi >= len(qr) {
			break
		}
		if r != qr[qi] {
			continue
		}
		matched++
		if ti == lastMatch+1 {
			run++
		} else {
			run = 1
		}
		lastMatch = ti
		qi++
	}

	if qi != len(qr) {
		return 0, false
	}

	return float64(matched)/float64(len(tr))*100 + float64(run)*10, true
}
