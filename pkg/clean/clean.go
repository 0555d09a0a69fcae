// Package clean canonicalizes raw text values coming out of model exports.
// Exported tables arrive with BOM prefixes, non-breaking spaces and stray
// whitespace depending on which tool wrote them; every comparison in the
// pipeline goes through Normalize first so the source encoding never matters.
package clean

import "strings"

const (
	bom  = "\uFEFF"
	nbsp = "\u00A0"
)

// Normalize strips a leading byte-order mark, replaces non-breaking spaces
// with ordinary spaces and trims surrounding whitespace. It is idempotent.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, bom, "")
	s = strings.ReplaceAll(s, nbsp, " ")
	return strings.TrimSpace(s)
}

// IsPresent reports whether a normalized value carries information.
// Empty strings and the literal "nan" (any case) count as absent.
func IsPresent(s string) bool {
	n := Normalize(s)
	return n != "" && strings.ToLower(n) != "nan"
}

// Row normalizes every key and value of a raw record. Keys that normalize
// to the empty string are dropped.
func Row(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		kk := Normalize(k)
		if kk == "" {
			continue
		}
		out[kk] = Normalize(v)
	}
	return out
}

// Rows normalizes a whole table of records.
func Rows(raw []map[string]string) []map[string]string {
	out := make([]map[string]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, Row(r))
	}
	return out
}
