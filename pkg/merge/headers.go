package merge

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/loincheck/loincheck-go/pkg/clean"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// foldHeader collapses whitespace runs and case so "Type  Name" and
// "type name" land on the same key.
func foldHeader(h string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(clean.Normalize(h), " "))
}

// HeaderIndex is a normalized lookup over a table's actual column names,
// built once per table.
type HeaderIndex struct {
	byFolded map[string]string
	headers  []string
}

// NewHeaderIndex indexes the given headers. On fold collisions the first
// header wins, matching first-seen column precedence elsewhere.
func NewHeaderIndex(headers []string) *HeaderIndex {
	ix := &HeaderIndex{byFolded: make(map[string]string, len(headers)), headers: headers}
	for _, h := range headers {
		k := foldHeader(h)
		if _, ok := ix.byFolded[k]; !ok {
			ix.byFolded[k] = h
		}
	}
	return ix
}

// Resolve maps a requested column name to the actual header, tolerating
// whitespace and case variation. An unresolvable name comes back unchanged:
// the caller's lookups then see every value as blank, which degrades to
// "always missing" instead of aborting the run.
func (ix *HeaderIndex) Resolve(requested string) (string, bool) {
	if h, ok := ix.byFolded[foldHeader(requested)]; ok {
		return h, true
	}
	return requested, false
}

// Suggest returns the closest existing header to an unresolved name, for
// log output only. Resolution itself never uses edit distance; a near miss
// is surfaced to the operator, not silently accepted.
func (ix *HeaderIndex) Suggest(requested string) string {
	want := foldHeader(requested)
	best, bestDist := "", -1
	for _, h := range ix.headers {
		d := levenshtein.ComputeDistance(want, foldHeader(h))
		if bestDist < 0 || d < bestDist {
			best, bestDist = h, d
		}
	}
	// Distances beyond a third of the name are noise, not near misses.
	if bestDist < 0 || bestDist > len(want)/3+1 {
		return ""
	}
	return best
}
