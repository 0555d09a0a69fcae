package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loincheck/loincheck-go/pkg/units"
)

var testStages = []string{"LOD200", "LOD300", "LOD350", "LOD400"}

func TestLoad(t *testing.T) {
	rows := []map[string]string{
		{
			"Category":  " Walls ",
			"ParamName": "Fire Rating",
			"Type":      "TEXT",
			"LOD200":    "0",
			"LOD300":    "1",
			"LOD350":    "yes",
			"Owner":     "Arch team",
		},
		{
			"Category":  "Ducts",
			"ParamName": "Width",
			"Type":      "number",
			"Min":       "100",
			"Max":       "2000",
			"Notes":     "units: mm",
			"LOD300":    "1",
		},
	}

	ruleset := Load(rows, testStages)
	require.Len(t, ruleset, 2)

	walls := ruleset[0]
	assert.Equal(t, "Walls", walls.Category)
	assert.Equal(t, "Fire Rating", walls.ParamName)
	assert.Equal(t, TypeText, walls.Type)
	assert.False(t, walls.AppliesTo("LOD200"))
	assert.True(t, walls.AppliesTo("LOD300"))
	// Non-numeric stage flags coerce to 0.
	assert.False(t, walls.AppliesTo("LOD350"))
	assert.False(t, walls.AppliesTo("LOD400"))
	assert.Equal(t, "Arch team", walls.Extra["Owner"])

	ducts := ruleset[1]
	assert.Equal(t, TypeNumber, ducts.Type)
	assert.Equal(t, units.Millimeters, ducts.UnitHint())
	assert.Nil(t, ducts.Extra)
}

func TestLoad_DefaultsTypeToText(t *testing.T) {
	ruleset := Load([]map[string]string{{"Category": "Walls", "ParamName": "Comments"}}, testStages)
	require.Len(t, ruleset, 1)
	assert.Equal(t, TypeText, ruleset[0].Type)
}

func TestRule_UnitHint(t *testing.T) {
	assert.Equal(t, units.Millimeters, Rule{Notes: "Units: MM expected"}.UnitHint())
	assert.Equal(t, units.Millimeters, Rule{Notes: "units: mm"}.UnitHint())
	assert.Equal(t, units.None, Rule{Notes: "units in meters"}.UnitHint())
	assert.Equal(t, units.None, Rule{}.UnitHint())
}

func TestMandatoryParams(t *testing.T) {
	ruleset := Load([]map[string]string{
		{"Category": "Walls", "ParamName": "Fire Rating", "LOD300": "1"},
		{"Category": "Ducts", "ParamName": "Width", "LOD300": "1"},
		{"Category": "Pipes", "ParamName": "Width", "LOD300": "1"},
		{"Category": "Doors", "ParamName": "Height", "LOD400": "1"},
		{"Category": "Floors", "ParamName": "", "LOD300": "1"},
	}, testStages)

	params := MandatoryParams(ruleset, "LOD300")
	assert.Equal(t, []string{"Fire Rating", "Width"}, params)
	assert.Equal(t, []string{"Height"}, MandatoryParams(ruleset, "LOD400"))
	assert.Empty(t, MandatoryParams(ruleset, "LOD200"))
}

func TestEvaluate_Presence(t *testing.T) {
	rule := Rule{Category: "Walls", ParamName: "Fire Rating"}

	for _, v := range []string{"", "  ", "nan", "NaN"} {
		ok, reason := Evaluate(rule, v)
		assert.False(t, ok, "value %q", v)
		assert.Equal(t, ReasonMissing, reason)
	}

	ok, reason := Evaluate(rule, "2h")
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestEvaluate_NumberRule(t *testing.T) {
	rule := Rule{
		Category:  "Ducts",
		ParamName: "Width",
		Type:      TypeNumber,
		Min:       "100",
		Max:       "2000",
		Notes:     "units: mm",
	}

	tests := []struct {
		name   string
		value  string
		pass   bool
		reason string
	}{
		{"in range", "150", true, ""},
		{"in range with suffix", "150 mm", true, ""},
		{"meters converted", "0.5 m", true, ""},
		{"below min", "50", false, ReasonLtMin},
		{"above max", "2500", false, ReasonGtMax},
		{"meters above max", "2.5 m", false, ReasonGtMax},
		{"not a number", "wide", false, ReasonNotNumber},
		{"boundary min", "100", true, ""},
		{"boundary max", "2000", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Evaluate(rule, tt.value)
			assert.Equal(t, tt.pass, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestEvaluate_NumberRule_MetersHintScalesBounds(t *testing.T) {
	// Bounds declared without a unit hint stay as-is, so a meter-suffixed
	// value converted to millimeters overshoots a small bound.
	rule := Rule{Type: TypeNumber, Max: "10"}
	ok, reason := Evaluate(rule, "0.5 m")
	assert.False(t, ok)
	assert.Equal(t, ReasonGtMax, reason)
}

func TestEvaluate_AllowedValues(t *testing.T) {
	rule := Rule{AllowedValues: "Yes|No| Partial "}

	ok, reason := Evaluate(rule, "Yes")
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, _ = Evaluate(rule, " Partial ")
	assert.True(t, ok)

	// Matching is case-sensitive after normalization.
	ok, reason = Evaluate(rule, "yes")
	assert.False(t, ok)
	assert.Equal(t, ReasonNotAllowed, reason)

	ok, reason = Evaluate(rule, "Maybe")
	assert.False(t, ok)
	assert.Equal(t, ReasonNotAllowed, reason)
}

func TestEvaluate_Regex(t *testing.T) {
	rule := Rule{Regex: `^[A-Z]{2}-\d{3}$`}

	ok, reason := Evaluate(rule, "AB-123")
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = Evaluate(rule, "ab-123")
	assert.False(t, ok)
	assert.Equal(t, ReasonRegexFail, reason)

	// Unanchored patterns still must match from the start.
	rule = Rule{Regex: `\d{3}`}
	ok, reason = Evaluate(rule, "AB-123")
	assert.False(t, ok)
	assert.Equal(t, ReasonRegexFail, reason)

	ok, _ = Evaluate(rule, "123-AB")
	assert.True(t, ok)

	rule = Rule{Regex: `([`}
	ok, reason = Evaluate(rule, "anything")
	assert.False(t, ok)
	assert.Equal(t, ReasonRegexError, reason)
}

func TestEvaluate_ReasonPrecedence(t *testing.T) {
	// Range checks run before the allowed-values check, so an out-of-range
	// value reports lt_min even when it is also not in the allowed set.
	rule := Rule{
		Type:          TypeNumber,
		Min:           "100",
		AllowedValues: "150|200",
	}
	ok, reason := Evaluate(rule, "50")
	assert.False(t, ok)
	assert.Equal(t, ReasonLtMin, reason)

	// Presence beats everything.
	ok, reason = Evaluate(rule, "")
	assert.False(t, ok)
	assert.Equal(t, ReasonMissing, reason)
}

func TestEvaluate_Deterministic(t *testing.T) {
	rule := Rule{
		Type:          TypeNumber,
		Min:           "10",
		Max:           "20",
		AllowedValues: "15|16",
		Regex:         `^\d+$`,
	}
	first, firstReason := Evaluate(rule, "17")
	for i := 0; i < 10; i++ {
		ok, reason := Evaluate(rule, "17")
		assert.Equal(t, first, ok)
		assert.Equal(t, firstReason, reason)
	}
}
