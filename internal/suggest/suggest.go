// Package suggest offers a "did you mean" hint for an unresolved tool
// name. No direct-import fuzzy-matching or edit-distance library appears
// anywhere in the retrieval corpus, so this is a small, self-contained
// Levenshtein implementation rather than an adopted dependency.
package suggest

import (
	"fmt"
	"sort"
	"strings"
)

// Suggest returns a formatted hint sentence naming the topN closest
// entries in known to reference, or the empty string if known is empty.
// When reference contains a dot (e.g. "github.list_files"), the suffix
// after the last dot is also scored as a candidate query and the better
// of the two distances is used per entry, since qualified tool names are
// often misremembered by their unqualified tail.
func Suggest(reference string, known []string, topN int) string {
	if len(known) == 0 {
		return ""
	}

	queries := []string{reference}
	if idx := strings.LastIndexByte(reference, '.'); idx >= 0 && idx < len(reference)-1 {
		queries = append(queries, reference[idx+1:])
	}

	type scored struct {
		name string
		dist int
	}
	ranked := make([]scored, 0, len(known))
	for _, name := range known {
		best := -1
		for _, q := range queries {
			d := levenshtein(q, name)
			if best == -1 || d < best {
				best = d
			}
		}
		ranked = append(ranked, scored{name, best})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].name < ranked[j].name
	})

	if topN > len(ranked) {
		topN = len(ranked)
	}
	top := ranked[:topN]
	if len(top) == 0 {
		return ""
	}
	if len(top) == 1 {
		return fmt.Sprintf(" Did you mean %q?", top[0].name)
	}

	quoted := make([]string, len(top))
	for i, s := range top {
		quoted[i] = fmt.Sprintf("%q", s.name)
	}
	return fmt.Sprintf(" Did you mean one of: %s?", strings.Join(quoted, ", "))
}

// levenshtein returns the classic unit-cost edit distance between a and b
// using a two-row dynamic program.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
