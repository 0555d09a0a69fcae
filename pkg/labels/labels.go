// Package labels turns rule verdicts into reviewer-facing Pass/Fail labels
// and loads explicitly reviewed label tables when they exist.
package labels

import (
	"os"

	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/tabular"
	"github.com/loincheck/loincheck-go/pkg/validation"
)

// Pass/Fail literals written to the label table. Only the literal verdict
// value "1" yields Pass when deriving from rule output.
const (
	Pass = "Pass"
	Fail = "Fail"
)

// Label is one review label for one entity.
type Label struct {
	ElementId     string
	Category      string
	ApprovedLabel string
	MissingList   string
}

// FromVerdicts derives fallback labels from a stage's rule verdicts:
// loin_pass "1" becomes Pass, every other value becomes Fail. Rows with a
// fully blank identity key are skipped.
func FromVerdicts(verdicts []validation.Verdict) []Label {
	out := make([]Label, 0, len(verdicts))
	for _, v := range verdicts {
		if v.ElementId == "" && v.Category == "" {
			continue
		}
		label := Fail
		if v.LoinPass == 1 {
			label = Pass
		}
		out = append(out, Label{
			ElementId:     v.ElementId,
			Category:      v.Category,
			ApprovedLabel: label,
			MissingList:   v.MissingListString(),
		})
	}
	return out
}

// FromVerdictTable derives labels from a verdict table that was read back
// from disk, applying the same literal-"1" boundary.
func FromVerdictTable(t *tabular.Table) []Label {
	out := make([]Label, 0, t.Len())
	for _, r := range t.Rows {
		eid := clean.Normalize(r["ElementId"])
		cat := clean.Normalize(r["Category"])
		if eid == "" && cat == "" {
			continue
		}
		label := Fail
		if clean.Normalize(r["loin_pass"]) == "1" {
			label = Pass
		}
		out = append(out, Label{
			ElementId:     eid,
			Category:      cat,
			ApprovedLabel: label,
			MissingList:   clean.Normalize(r["missing_list"]),
		})
	}
	return out
}

// Load reads an explicit reviewer label table. A missing or empty file
// returns nil so callers can fall back to derivation.
func Load(path string) ([]Label, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	t, err := tabular.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, nil
	}
	out := make([]Label, 0, t.Len())
	for _, r := range t.Rows {
		out = append(out, Label{
			ElementId:     r["ElementId"],
			Category:      r["Category"],
			ApprovedLabel: r["ApprovedLabel"],
			MissingList:   r["MissingList"],
		})
	}
	return out, nil
}

// Table renders labels as a writable table with the label output schema.
func Table(ls []Label) *tabular.Table {
	t := tabular.NewTable("ElementId", "Category", "ApprovedLabel", "MissingList")
	for _, l := range ls {
		t.Rows = append(t.Rows, map[string]string{
			"ElementId":     l.ElementId,
			"Category":      l.Category,
			"ApprovedLabel": l.ApprovedLabel,
			"MissingList":   l.MissingList,
		})
	}
	return t
}
