// Package merge joins the pipeline's per-entity tables (parameters,
// geometry, labels, rule verdicts and predictions) on the composite
// (ElementId, Category) key and owns the column layout of the merged output.
package merge

import (
	"sort"
	"strings"

	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/labels"
	"github.com/loincheck/loincheck-go/pkg/tabular"
)

// FlagPrefix marks the synthesized per-parameter missing-value columns.
const FlagPrefix = "is_missing_"

// metaColumns is the fixed prefix of the merged output schema. Downstream
// consumers rely on this exact order.
var metaColumns = []string{"ElementId", "Category", "Type Name", "Level", "ApprovedLabel", "MissingList"}

// Key is the composite identity of one entity record.
type Key struct {
	ElementId string
	Category  string
}

// KeyOf extracts the normalized identity key from a record.
func KeyOf(r map[string]string) Key {
	return Key{
		ElementId: clean.Normalize(r["ElementId"]),
		Category:  clean.Normalize(r["Category"]),
	}
}

// Options controls merge behavior.
type Options struct {
	// KeepDuplicates retains repeated (ElementId, Category) parameter rows.
	// When false the first occurrence wins.
	KeepDuplicates bool
}

// Unresolved records a mandatory parameter whose column could not be found
// in the merged header set, along with the closest near miss (may be empty).
type Unresolved struct {
	Param      string
	Suggestion string
}

// Result carries the merged table plus resolution diagnostics for logging.
type Result struct {
	Table      *tabular.Table
	Unresolved []Unresolved
}

// Stage merges one stage's tables. Parameter records are the base, in input
// order; geometry fields fill blanks only (parameter values always win on
// overlap); one is_missing_<column> flag is synthesized per mandatory
// parameter; label fields overwrite on key match.
func Stage(params, geometry []map[string]string, mandatory []string, stageLabels []labels.Label, opts Options) *Result {
	geomIndex := make(map[Key]map[string]string, len(geometry))
	for _, g := range geometry {
		k := KeyOf(g)
		if _, ok := geomIndex[k]; !ok {
			geomIndex[k] = g
		}
	}

	base := params
	if !opts.KeepDuplicates {
		base = dedupe(params)
	}

	merged := make([]map[string]string, 0, len(base))
	for _, pr := range base {
		m := make(map[string]string, len(pr))
		for k, v := range pr {
			m[clean.Normalize(k)] = clean.Normalize(v)
		}
		if gr, ok := geomIndex[KeyOf(pr)]; ok {
			for h, v := range gr {
				hs := clean.Normalize(h)
				if hs == "" {
					continue
				}
				if existing, ok := m[hs]; !ok || clean.Normalize(existing) == "" {
					m[hs] = clean.Normalize(v)
				}
			}
		}
		merged = append(merged, m)
	}

	headers := collectHeaders(merged)
	index := NewHeaderIndex(headers)

	res := &Result{}
	var resolved []string
	seen := make(map[string]bool)
	for _, pname := range mandatory {
		actual, exact := index.Resolve(pname)
		if !exact {
			res.Unresolved = append(res.Unresolved, Unresolved{Param: pname, Suggestion: index.Suggest(pname)})
		}
		if !seen[actual] {
			seen[actual] = true
			resolved = append(resolved, actual)
		}
	}

	for _, m := range merged {
		for _, actual := range resolved {
			flag := FlagPrefix + actual
			val := clean.Normalize(m[actual])
			if val == "" || strings.ToLower(val) == "nan" {
				m[flag] = "TRUE"
			} else {
				m[flag] = "FALSE"
			}
		}
	}

	if len(stageLabels) > 0 {
		labelIndex := make(map[Key]labels.Label, len(stageLabels))
		for _, l := range stageLabels {
			k := Key{ElementId: l.ElementId, Category: l.Category}
			if _, ok := labelIndex[k]; !ok {
				labelIndex[k] = l
			}
		}
		for _, m := range merged {
			if l, ok := labelIndex[KeyOf(m)]; ok {
				m["ApprovedLabel"] = l.ApprovedLabel
				m["MissingList"] = l.MissingList
			}
		}
	}

	res.Table = &tabular.Table{Headers: orderColumns(merged), Rows: merged}
	return res
}

// dedupe keeps the first record per identity key.
func dedupe(rows []map[string]string) []map[string]string {
	seen := make(map[Key]bool, len(rows))
	out := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		k := KeyOf(r)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// collectHeaders gathers every column present in the merged rows, first-seen
// order across rows.
func collectHeaders(rows []map[string]string) []string {
	var headers []string
	seen := make(map[string]bool)
	for _, r := range rows {
		for _, c := range sortedKeys(r) {
			if !seen[c] {
				seen[c] = true
				headers = append(headers, c)
			}
		}
	}
	return headers
}

// orderColumns produces the merged output schema: the fixed metadata prefix,
// then the remaining non-flag columns sorted, then the is_missing_* flags
// sorted. The order is a stable contract for downstream consumers.
func orderColumns(rows []map[string]string) []string {
	seen := make(map[string]bool, len(metaColumns))
	for _, c := range metaColumns {
		seen[c] = true
	}
	var rest []string
	for _, r := range rows {
		for _, c := range sortedKeys(r) {
			if !seen[c] {
				seen[c] = true
				rest = append(rest, c)
			}
		}
	}
	var nonFlags, flags []string
	for _, c := range rest {
		if strings.HasPrefix(c, FlagPrefix) {
			flags = append(flags, c)
		} else {
			nonFlags = append(nonFlags, c)
		}
	}
	sort.Strings(nonFlags)
	sort.Strings(flags)

	out := make([]string, 0, len(metaColumns)+len(nonFlags)+len(flags))
	out = append(out, metaColumns...)
	out = append(out, nonFlags...)
	out = append(out, flags...)
	return out
}

func sortedKeys(r map[string]string) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
