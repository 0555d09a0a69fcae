package ml

import (
	"fmt"
	"strconv"
	"time"

	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/features"
	"github.com/loincheck/loincheck-go/pkg/tabular"
)

// Statuses derived from the rule verdict and the learned score. A failed
// rule verdict is always Non-compliant regardless of score.
const (
	StatusNonCompliant = "Non-compliant"
	StatusCompliant    = "Compliant"
	StatusNeedsReview  = "Needs Review"
)

// checkedOnFormat is the timestamp layout of the checked_on column.
const checkedOnFormat = "2006-01-02 15:04"

// ScoreOptions configures scoring.
type ScoreOptions struct {
	// Threshold on lod_score above which a rule-passing row is Compliant.
	Threshold float64
	// Now supplies the checked_on timestamp; nil means time.Now.
	Now func() time.Time
}

// Score runs the model over a merged table and returns the prediction table:
// identity columns, the (possibly defaulted) loin_pass, lod_score,
// final_status and checked_on. Column order matches the prediction output
// contract: ElementId, Category, [LOD_Stage], loin_pass, [missing_list],
// lod_score, final_status, checked_on.
func Score(model *Model, t *tabular.Table, opts ScoreOptions) (*tabular.Table, error) {
	matrix, err := features.Build(t, model.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build features for scoring: %w", err)
	}
	proba, err := model.PredictProba(matrix)
	if err != nil {
		return nil, fmt.Errorf("failed to score: %w", err)
	}

	if opts.Threshold <= 0 {
		opts.Threshold = 0.75
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	checkedOn := now().Format(checkedOnFormat)

	hasStage := hasHeader(t, "LOD_Stage")
	hasMissing := hasHeader(t, "missing_list")

	columns := []string{"ElementId", "Category"}
	if hasStage {
		columns = append(columns, "LOD_Stage")
	}
	columns = append(columns, "loin_pass")
	if hasMissing {
		columns = append(columns, "missing_list")
	}
	columns = append(columns, "lod_score", "final_status", "checked_on")

	out := tabular.NewTable(columns...)
	for i, r := range t.Rows {
		// An absent loin_pass column means the rule check has not run;
		// the score alone then decides between Compliant and review.
		loinPass := 1
		passRaw := clean.Normalize(r["loin_pass"])
		if passRaw != "" {
			if v, err := strconv.Atoi(passRaw); err == nil {
				loinPass = v
			}
		}

		status := StatusNeedsReview
		if loinPass == 0 {
			status = StatusNonCompliant
		} else if proba[i] >= opts.Threshold {
			status = StatusCompliant
		}

		row := map[string]string{
			"ElementId":    r["ElementId"],
			"Category":     r["Category"],
			"loin_pass":    strconv.Itoa(loinPass),
			"lod_score":    strconv.FormatFloat(proba[i], 'f', 6, 64),
			"final_status": status,
			"checked_on":   checkedOn,
		}
		if hasStage {
			row["LOD_Stage"] = r["LOD_Stage"]
		}
		if hasMissing {
			row["missing_list"] = r["missing_list"]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
