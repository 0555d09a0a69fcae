// Package rules holds the in-memory ruleset and the per-value constraint
// evaluator. A rule describes one parameter of one entity category and the
// stages it applies to; evaluation yields a pass/fail verdict with a
// machine-readable reason code.
package rules

import (
	"strconv"
	"strings"

	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/units"
)

// Value type a rule checks. Anything other than "number" is treated as text.
const (
	TypeText   = "text"
	TypeNumber = "number"
)

// Rule is one constraint statement from the ruleset table. String fields are
// kept in their normalized raw form; interpretation (unit scaling, splitting
// AllowedValues) happens at evaluation time so a malformed cell degrades to a
// failing check instead of a load error.
type Rule struct {
	Category      string
	ParamName     string
	Type          string
	AllowedValues string
	Regex         string
	Min           string
	Max           string
	Notes         string
	Stages        map[string]int
	// Extra keeps ruleset columns this package does not interpret, so a
	// schema-tolerant caller can still reach them.
	Extra map[string]string
}

var knownColumns = map[string]bool{
	"Category": true, "ParamName": true, "Type": true, "AllowedValues": true,
	"Regex": true, "Min": true, "Max": true, "Notes": true,
}

// Load builds the ordered ruleset from raw key/value records, one per table
// row. Keys and values are normalized; each recognized stage column is coerced
// to a 0/1 applicability flag (absent or non-numeric means 0). Rows are not
// deduplicated and never rejected: a malformed row simply never applies.
func Load(rows []map[string]string, stages []string) []Rule {
	out := make([]Rule, 0, len(rows))
	for _, raw := range rows {
		row := clean.Row(raw)
		flags := make(map[string]int, len(stages))
		for _, s := range stages {
			n, err := strconv.Atoi(row[s])
			if err != nil {
				n = 0
			}
			flags[s] = n
		}
		r := Rule{
			Category:      row["Category"],
			ParamName:     row["ParamName"],
			Type:          strings.ToLower(row["Type"]),
			AllowedValues: row["AllowedValues"],
			Regex:         row["Regex"],
			Min:           row["Min"],
			Max:           row["Max"],
			Notes:         row["Notes"],
			Stages:        flags,
		}
		if r.Type == "" {
			r.Type = TypeText
		}
		for k, v := range row {
			if knownColumns[k] {
				continue
			}
			if contains(stages, k) {
				continue
			}
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[k] = v
		}
		out = append(out, r)
	}
	return out
}

// AppliesTo reports whether the rule is in force at the given stage.
func (r Rule) AppliesTo(stage string) bool {
	return r.Stages[stage] == 1
}

// UnitHint returns the unit the rule's bounds and observed values are declared
// in. The ruleset encodes this as a free-text note; "units: mm" (any case)
// is the only recognized hint.
func (r Rule) UnitHint() units.Unit {
	if strings.Contains(strings.ToLower(clean.Normalize(r.Notes)), "units: mm") {
		return units.Millimeters
	}
	return units.None
}

// boundMillimeters interprets a Min/Max cell. Bounds are trusted to already be
// in the rule's declared unit, so only the hint scaling is applied; they do
// not go through the suffix-detecting parser.
func boundMillimeters(raw string, hint units.Unit) (float64, bool) {
	s := strings.ReplaceAll(clean.Normalize(raw), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return units.ToMillimeters(v, hint), true
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

// MandatoryParams collects the distinct ParamNames of every rule in force at
// the stage, in first-seen order and independent of category. The merge
// engine synthesizes one is_missing flag per entry.
func MandatoryParams(ruleset []Rule, stage string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range ruleset {
		if !r.AppliesTo(stage) || r.ParamName == "" || seen[r.ParamName] {
			continue
		}
		seen[r.ParamName] = true
		out = append(out, r.ParamName)
	}
	return out
}
