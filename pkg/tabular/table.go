// Package tabular reads and writes the pipeline's CSV and Excel tables.
// All cell values stay plain strings; typed interpretation is the caller's
// job. CSV output carries a UTF-8 byte-order mark and minimal quoting so the
// files open cleanly in spreadsheet tools.
package tabular

import "sort"

// Table is an ordered set of string records with a remembered header order.
type Table struct {
	Headers []string
	Rows    []map[string]string
}

// NewTable creates an empty table with the given header order.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// Append adds a record, extending the header set with any new keys in
// first-seen order.
func (t *Table) Append(row map[string]string) {
	seen := make(map[string]bool, len(t.Headers))
	for _, h := range t.Headers {
		seen[h] = true
	}
	for _, h := range sortedNewKeys(row, seen) {
		t.Headers = append(t.Headers, h)
	}
	t.Rows = append(t.Rows, row)
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.Rows) }

func sortedNewKeys(row map[string]string, seen map[string]bool) []string {
	var out []string
	for k := range row {
		if !seen[k] {
			out = append(out, k)
		}
	}
	// Map iteration order is random; keep header growth deterministic.
	sort.Strings(out)
	return out
}
