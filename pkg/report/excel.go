package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/360EntSecGroup-Skylar/excelize"

	"github.com/loincheck/loincheck-go/pkg/tabular"
)

func cellName(col, row int) string {
	colStr := ""
	for col > 0 {
		col--
		colStr = string(rune('A'+col%26)) + colStr
		col /= 26
	}
	return fmt.Sprintf("%s%d", colStr, row)
}

// WriteExcel writes a table to an .xlsx workbook, headers first. Reviewers
// who annotate results in a spreadsheet get the same column order as the
// CSV outputs.
func WriteExcel(filePath, sheetName string, t *tabular.Table) error {
	f := excelize.NewFile()
	if sheetName != "" && sheetName != "Sheet1" {
		f.SetSheetName("Sheet1", sheetName)
	} else {
		sheetName = "Sheet1"
	}

	row := 1
	for col, header := range t.Headers {
		f.SetCellValue(sheetName, cellName(col+1, row), header)
	}
	row++

	for _, r := range t.Rows {
		for col, header := range t.Headers {
			f.SetCellValue(sheetName, cellName(col+1, row), r[header])
		}
		row++
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}
