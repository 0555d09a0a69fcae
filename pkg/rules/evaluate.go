package rules

import (
	"regexp"
	"strings"

	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/units"
)

// Reason codes attached to failing checks. Exactly one is produced per
// failing rule: the first check to fail, in evaluation order.
const (
	ReasonMissing    = "missing"
	ReasonNotNumber  = "not_number"
	ReasonLtMin      = "lt_min"
	ReasonGtMax      = "gt_max"
	ReasonNotAllowed = "not_allowed"
	ReasonRegexFail  = "regex_fail"
	ReasonRegexError = "regex_error"
)

// Evaluate checks one observed value against one rule. Checks run in a fixed
// order: presence, numeric range (number rules only), allowed values, regex.
// The first failure returns (false, reason); passing every applicable check
// returns (true, ""). Evaluate is a pure function of its inputs.
func Evaluate(rule Rule, value string) (bool, string) {
	if !clean.IsPresent(value) {
		return false, ReasonMissing
	}

	if rule.Type == TypeNumber {
		hint := rule.UnitHint()
		q, ok := units.ParseNumber(value, hint)
		if !ok {
			return false, ReasonNotNumber
		}
		mm := q.Normalized(hint)
		if mn, ok := boundMillimeters(rule.Min, hint); ok && mm < mn {
			return false, ReasonLtMin
		}
		if mx, ok := boundMillimeters(rule.Max, hint); ok && mm > mx {
			return false, ReasonGtMax
		}
	}

	if rule.AllowedValues != "" {
		if !allowed(rule.AllowedValues, value) {
			return false, ReasonNotAllowed
		}
	}

	if rule.Regex != "" {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			return false, ReasonRegexError
		}
		// Match anchored at the start of the value, like re.match.
		loc := re.FindStringIndex(clean.Normalize(value))
		if loc == nil || loc[0] != 0 {
			return false, ReasonRegexFail
		}
	}

	return true, ""
}

// allowed reports whether the normalized value appears in the pipe-delimited
// candidate set. Matching is exact after normalization: whitespace and BOM
// noise are ignored but case is not folded, so "yes" does not satisfy "Yes".
func allowed(allowedValues, value string) bool {
	v := clean.Normalize(value)
	for _, cand := range strings.Split(allowedValues, "|") {
		if clean.Normalize(cand) == v {
			return true
		}
	}
	return false
}
