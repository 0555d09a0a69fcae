// Package units parses free-form numeric values that may carry a length unit
// suffix and normalizes them to the pipeline's canonical unit, millimeters.
package units

import (
	"strconv"
	"strings"

	"github.com/loincheck/loincheck-go/pkg/clean"
)

// Unit identifies the unit a parsed quantity is expressed in.
type Unit string

const (
	// None means the value carried no unit information.
	None Unit = ""
	// Millimeters is the canonical internal unit for length-like values.
	Millimeters Unit = "mm"
	// Meters values are converted to millimeters before comparison.
	Meters Unit = "m"
)

// Quantity is a parsed numeric value tagged with the unit it was read in.
type Quantity struct {
	Value float64
	Unit  Unit
}

// ParseNumber attempts to read a numeric quantity from a raw exported value.
// Strategies are tried in order and the first success wins:
//
//  1. normalize, lowercase, drop thousands separators; "" and "nan" fail
//  2. direct float parse, tagged with unitHint
//  3. trailing " mm" token, prefix parsed as millimeters
//  4. trailing " m" token, prefix parsed as meters
//  5. strip every non-numeric rune and parse the residue (least trusted,
//     deliberately last)
//
// The boolean result is false when no strategy produced a number. No strategy
// panics; failure is always an explicit "no result".
func ParseNumber(raw string, unitHint Unit) (Quantity, bool) {
	s := strings.ToLower(clean.Normalize(raw))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "nan" {
		return Quantity{}, false
	}

	if v, ok := parseFloat(s); ok {
		return Quantity{Value: v, Unit: unitHint}, true
	}
	if rest, ok := strings.CutSuffix(s, " mm"); ok {
		if v, ok := parseFloat(strings.TrimSpace(rest)); ok {
			return Quantity{Value: v, Unit: Millimeters}, true
		}
	}
	if rest, ok := strings.CutSuffix(s, " m"); ok {
		if v, ok := parseFloat(strings.TrimSpace(rest)); ok {
			return Quantity{Value: v, Unit: Meters}, true
		}
	}
	if v, ok := parseFloat(stripNonNumeric(s)); ok {
		return Quantity{Value: v, Unit: None}, true
	}
	return Quantity{}, false
}

// ToMillimeters converts a value in the given unit to millimeters.
// Unit-less values pass through unchanged; they are assumed to already be in
// the unit the caller's rule declares.
func ToMillimeters(value float64, unit Unit) float64 {
	if unit == Meters {
		return value * 1000.0
	}
	return value
}

// Normalized returns the quantity's value in millimeters. A quantity whose
// parse carried no unit falls back to the hint it was parsed with.
func (q Quantity) Normalized(unitHint Unit) float64 {
	u := q.Unit
	if u == None {
		u = unitHint
	}
	return ToMillimeters(q.Value, u)
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func stripNonNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E':
			b.WriteRune(r)
		}
	}
	return b.String()
}
