package validation

import (
	"strconv"
	"strings"

	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/tabular"
)

// verdictColumns is the verdict CSV schema, in write order.
var verdictColumns = []string{"ElementId", "Category", "LOD_Stage", "loin_pass", "missing_list"}

// Table renders verdicts as the verdict CSV layout.
func Table(verdicts []Verdict) *tabular.Table {
	t := tabular.NewTable(verdictColumns...)
	for _, v := range verdicts {
		t.Rows = append(t.Rows, map[string]string{
			"ElementId":    v.ElementId,
			"Category":     v.Category,
			"LOD_Stage":    v.LODStage,
			"loin_pass":    strconv.Itoa(v.LoinPass),
			"missing_list": v.MissingListString(),
		})
	}
	return t
}

// FromTable parses a verdict table written by Table back into verdicts.
// A loin_pass that is not exactly "1" counts as a failure.
func FromTable(t *tabular.Table) []Verdict {
	out := make([]Verdict, 0, t.Len())
	for _, r := range t.Rows {
		v := Verdict{
			ElementId: clean.Normalize(r["ElementId"]),
			Category:  clean.Normalize(r["Category"]),
			LODStage:  clean.Normalize(r["LOD_Stage"]),
		}
		if clean.Normalize(r["loin_pass"]) == "1" {
			v.LoinPass = 1
		}
		if ml := clean.Normalize(r["missing_list"]); ml != "" {
			v.MissingList = strings.Split(ml, ";")
		}
		out = append(out, v)
	}
	return out
}
