// Package features builds the numeric matrix handed to the classifier. The
// feature contract is fixed: a subset of known categorical columns (one-hot
// encoded), generic measured quantities, width/thickness-like fields
// normalized to millimeters, and the is_missing_* flags as 0/1 integers.
package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/merge"
	"github.com/loincheck/loincheck-go/pkg/tabular"
	"github.com/loincheck/loincheck-go/pkg/units"
)

// Candidate columns. Only those present in the table are used.
var (
	catCandidates = []string{
		"Category", "System Type", "Material", "Assembly Code", "Type Mark",
		"Level", "Service Type", "Model", "Structural", "Fire Rating", "Description",
	}
	numGeneric  = []string{"Length_m", "SurfaceArea_m2", "Volume_m3", "ConnCount"}
	mmPreferred = []string{"Width", "Default Thickness", "Insulation Thickness", "Lining Thickness"}
)

// mmSuffix marks numeric columns rebuilt from a raw field via unit-aware
// parsing to millimeters.
const mmSuffix = "_mm"

// Spec pins the feature layout a model was trained with, so scoring rebuilds
// the exact same matrix even when the scored table differs. It is persisted
// alongside the model.
type Spec struct {
	CatCols []string            `json:"cat_cols"`
	NumCols []string            `json:"num_cols"`
	Levels  map[string][]string `json:"levels"`
}

// Matrix is a dense feature matrix with named columns.
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

// DeriveSpec inspects a labeled training table and fixes the feature layout:
// present categorical candidates (with their observed value levels), present
// generic numeric columns, mm-rebuilt columns for present width/thickness
// fields, and every is_missing_* flag column.
func DeriveSpec(t *tabular.Table) Spec {
	have := make(map[string]bool, len(t.Headers))
	for _, h := range t.Headers {
		have[h] = true
	}

	spec := Spec{Levels: make(map[string][]string)}
	for _, c := range catCandidates {
		if !have[c] {
			continue
		}
		spec.CatCols = append(spec.CatCols, c)
		levels := make(map[string]bool)
		for _, r := range t.Rows {
			if v := clean.Normalize(r[c]); v != "" {
				levels[v] = true
			}
		}
		ordered := make([]string, 0, len(levels))
		for v := range levels {
			ordered = append(ordered, v)
		}
		sort.Strings(ordered)
		spec.Levels[c] = ordered
	}

	for _, c := range numGeneric {
		if have[c] {
			spec.NumCols = append(spec.NumCols, c)
		}
	}
	for _, c := range mmPreferred {
		if have[c] {
			spec.NumCols = append(spec.NumCols, c+mmSuffix)
		}
	}
	var flagCols []string
	for _, h := range t.Headers {
		if strings.HasPrefix(h, merge.FlagPrefix) {
			flagCols = append(flagCols, h)
		}
	}
	sort.Strings(flagCols)
	spec.NumCols = append(spec.NumCols, flagCols...)
	return spec
}

// Build encodes the table against a fixed spec. Categorical values outside
// the spec's levels encode as all-zero (unknown tolerance); absent numeric
// columns contribute zeros; unparseable numbers become 0. Build never fails
// on data content, only on an empty spec.
func Build(t *tabular.Table, spec Spec) (*Matrix, error) {
	if len(spec.CatCols) == 0 && len(spec.NumCols) == 0 {
		return nil, fmt.Errorf("feature spec is empty: no categorical or numeric columns")
	}

	var columns []string
	for _, c := range spec.CatCols {
		for _, lvl := range spec.Levels[c] {
			columns = append(columns, c+"="+lvl)
		}
	}
	columns = append(columns, spec.NumCols...)

	m := &Matrix{Columns: columns, Rows: make([][]float64, 0, t.Len())}
	for _, r := range t.Rows {
		row := make([]float64, 0, len(columns))
		for _, c := range spec.CatCols {
			v := clean.Normalize(r[c])
			for _, lvl := range spec.Levels[c] {
				if v == lvl {
					row = append(row, 1)
				} else {
					row = append(row, 0)
				}
			}
		}
		for _, c := range spec.NumCols {
			row = append(row, numericValue(r, c))
		}
		m.Rows = append(m.Rows, row)
	}
	return m, nil
}

// numericValue resolves one numeric feature from a raw record. Flag columns
// map TRUE/1/YES to 1; <name>_mm columns prefer an already-built column and
// otherwise rebuild from the raw field with unit-aware parsing; everything
// else is a lenient float parse. Absent or unparseable values are 0.
func numericValue(r map[string]string, col string) float64 {
	if strings.HasPrefix(col, merge.FlagPrefix) {
		switch strings.ToUpper(clean.Normalize(r[col])) {
		case "TRUE", "1", "YES":
			return 1
		}
		return 0
	}
	if base, ok := strings.CutSuffix(col, mmSuffix); ok {
		raw, present := r[col]
		if !present {
			raw = r[base]
		}
		if q, ok := units.ParseNumber(raw, units.Millimeters); ok {
			return q.Normalized(units.Millimeters)
		}
		return 0
	}
	if q, ok := units.ParseNumber(r[col], units.None); ok {
		return q.Value
	}
	return 0
}
