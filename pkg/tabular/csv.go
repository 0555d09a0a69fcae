package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loincheck/loincheck-go/pkg/clean"
)

// ReadCSV reads a whole CSV file into a Table. The first record is the
// header row; headers and values are normalized (BOM, NBSP, whitespace) and
// headers that normalize to the empty string are dropped along with their
// column. Every value stays a string.
func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV %s: %w", path, err)
	}
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

// WriteCSV writes the table to path in header order, creating parent
// directories as needed. A UTF-8 byte-order mark is prepended so spreadsheet
// tools detect the encoding; encoding/csv quotes only fields that need it.
func WriteCSV(path string, t *Table) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString("\uFEFF"); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	headers := make([]string, 0, len(t.Headers))
	for _, h := range t.Headers {
		if clean.Normalize(h) != "" {
			headers = append(headers, h)
		}
	}

	w := csv.NewWriter(file)
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(headers))
	for _, row := range t.Rows {
		for i, h := range headers {
			record[i] = row[h]
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
