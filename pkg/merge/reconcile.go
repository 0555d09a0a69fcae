package merge

import (
	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/tabular"
)

// reconcileColumns is the writer-facing schema: identity, deterministic rule
// fields, then the prediction-only context fields.
var reconcileColumns = []string{
	"ElementId", "Category", "LOD_Stage", "loin_pass", "missing_list",
	"lod_score", "final_status", "checked_on",
}

// Reconcile joins a rule-verdict table with a prediction table on the
// composite key, one output row per prediction row. For overlapping fields
// the verdict side wins whenever it is non-empty; prediction values fill
// gaps only. loin_pass is always taken from the verdict side when present,
// so a learned score never overrides a deterministic compliance verdict,
// and defaults to "1" only when absent from both sides.
func Reconcile(verdicts, predictions *tabular.Table) *tabular.Table {
	verdictIndex := make(map[Key]map[string]string, verdicts.Len())
	for _, row := range verdicts.Rows {
		k := KeyOf(row)
		if _, ok := verdictIndex[k]; !ok {
			verdictIndex[k] = row
		}
	}

	out := tabular.NewTable(reconcileColumns...)
	for _, ai := range predictions.Rows {
		base := verdictIndex[KeyOf(ai)]
		row := map[string]string{
			"ElementId":    firstNonEmpty(ai["ElementId"], base["ElementId"]),
			"Category":     firstNonEmpty(ai["Category"], base["Category"]),
			"LOD_Stage":    firstNonEmpty(base["LOD_Stage"], ai["LOD_Stage"]),
			"loin_pass":    firstNonEmpty(base["loin_pass"], ai["loin_pass"], "1"),
			"missing_list": firstNonEmpty(base["missing_list"], ai["missing_list"]),
			"lod_score":    clean.Normalize(ai["lod_score"]),
			"final_status": clean.Normalize(ai["final_status"]),
			"checked_on":   clean.Normalize(ai["checked_on"]),
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// firstNonEmpty returns the first candidate that normalizes to a non-empty
// string, or "" when none does.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if s := clean.Normalize(c); s != "" {
			return s
		}
	}
	return ""
}
