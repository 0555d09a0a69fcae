package tabular

import (
	"fmt"

	"github.com/360EntSecGroup-Skylar/excelize"

	"github.com/loincheck/loincheck-go/pkg/clean"
)

// ReadExcel reads one worksheet of an .xlsx workbook into a Table, applying
// the same header/value normalization as ReadCSV. An empty sheetName selects
// the first sheet. Rulesets are often authored as workbooks; this keeps them
// loadable without an export step.
func ReadExcel(path, sheetName string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	if sheetName == "" {
		sheetName = f.GetSheetName(1)
	}

	records := f.GetRows(sheetName)
	if len(records) == 0 {
		return NewTable(), nil
	}

	var headers []string
	keep := make([]int, 0, len(records[0]))
	for i, h := range records[0] {
		hh := clean.Normalize(h)
		if hh == "" {
			continue
		}
		headers = append(headers, hh)
		keep = append(keep, i)
	}

	t := NewTable(headers...)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(headers))
		for j, i := range keep {
			if i < len(rec) {
				row[headers[j]] = clean.Normalize(rec[i])
			} else {
				row[headers[j]] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
