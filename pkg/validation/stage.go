// Package validation applies the ruleset to extracted parameter records,
// producing one verdict per (record, stage) pair.
package validation

import (
	"strings"

	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/rules"
)

// Verdict is the evaluation outcome for one record at one stage.
type Verdict struct {
	ElementId string
	Category  string
	LODStage  string
	LoinPass  int
	// MissingList holds one "<param>:<reason>" entry per failed rule, in
	// rule order.
	MissingList []string
}

// MissingListString joins the failure entries with the ";" separator used in
// the verdict CSV.
func (v Verdict) MissingListString() string {
	return strings.Join(v.MissingList, ";")
}

// ValidateStage evaluates every record against the rules in force at the
// given stage. Records whose ElementId and Category are both blank are
// treated as junk rows and skipped. A category with no applicable rules
// passes vacuously: the verdict is emitted with LoinPass=1 and an empty
// failure list so downstream joins stay total.
func ValidateStage(records []map[string]string, ruleset []rules.Rule, stage string) []Verdict {
	byCategory := make(map[string][]rules.Rule)
	for _, r := range ruleset {
		if r.AppliesTo(stage) {
			byCategory[r.Category] = append(byCategory[r.Category], r)
		}
	}

	out := make([]Verdict, 0, len(records))
	for _, raw := range records {
		rec := clean.Row(raw)
		cat := rec["Category"]
		if cat == "" && rec["ElementId"] == "" {
			continue
		}

		var errs []string
		for _, rule := range byCategory[cat] {
			ok, reason := rules.Evaluate(rule, rec[rule.ParamName])
			if !ok {
				errs = append(errs, rule.ParamName+":"+reason)
			}
		}

		pass := 1
		if len(errs) > 0 {
			pass = 0
		}
		out = append(out, Verdict{
			ElementId:   rec["ElementId"],
			Category:    cat,
			LODStage:    stage,
			LoinPass:    pass,
			MissingList: errs,
		})
	}
	return out
}

// Summary aggregates a verdict set for logging and run history.
type Summary struct {
	Stage  string
	Total  int
	Passed int
	Failed int
}

// Summarize counts pass/fail outcomes for a stage's verdicts.
func Summarize(stage string, verdicts []Verdict) Summary {
	s := Summary{Stage: stage, Total: len(verdicts)}
	for _, v := range verdicts {
		if v.LoinPass == 1 {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}
