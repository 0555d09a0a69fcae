// Package report renders run results for people: a PDF summary of the
// per-stage verdicts and an Excel export of any output table.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/loincheck/loincheck-go/pkg/validation"
)

// ParamFailure counts how often one parameter appeared in missing lists.
type ParamFailure struct {
	Param string
	Count int
}

// StageSummary is the per-stage material of the PDF report.
type StageSummary struct {
	Stage       string
	Total       int
	Passed      int
	Failed      int
	TopFailures []ParamFailure
}

// PassRate returns the fraction of passing elements, 0 for an empty stage.
func (s StageSummary) PassRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total)
}

// Summarize aggregates a stage's verdicts: totals plus the topN most frequent
// failing parameters. Ties break alphabetically so output is stable.
func Summarize(stage string, verdicts []validation.Verdict, topN int) StageSummary {
	s := StageSummary{Stage: stage, Total: len(verdicts)}
	failures := map[string]int{}
	for _, v := range verdicts {
		if v.LoinPass == 1 {
			s.Passed++
			continue
		}
		s.Failed++
		for _, entry := range v.MissingList {
			param, _, _ := strings.Cut(entry, ":")
			failures[param]++
		}
	}

	for param, count := range failures {
		s.TopFailures = append(s.TopFailures, ParamFailure{Param: param, Count: count})
	}
	sort.Slice(s.TopFailures, func(i, j int) bool {
		if s.TopFailures[i].Count != s.TopFailures[j].Count {
			return s.TopFailures[i].Count > s.TopFailures[j].Count
		}
		return s.TopFailures[i].Param < s.TopFailures[j].Param
	})
	if topN > 0 && len(s.TopFailures) > topN {
		s.TopFailures = s.TopFailures[:topN]
	}
	return s
}

// WritePDF renders the summaries into a one-page-per-run PDF report.
func WritePDF(filePath, title string, summaries []StageSummary) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, title)
	pdf.Ln(15)

	pdf.SetFont("Arial", "", 10)
	generatedAt := fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04:05"))
	pdf.Cell(0, 8, generatedAt)
	pdf.Ln(12)

	headers := []string{"Stage", "Elements", "Passed", "Failed", "Pass rate"}
	widths := []float64{34, 34, 34, 34, 34}

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(255, 200, 100)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for row, s := range summaries {
		if row%2 == 1 {
			pdf.SetFillColor(240, 240, 240)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		cells := []string{
			s.Stage,
			fmt.Sprintf("%d", s.Total),
			fmt.Sprintf("%d", s.Passed),
			fmt.Sprintf("%d", s.Failed),
			fmt.Sprintf("%.1f%%", s.PassRate()*100),
		}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 7, c, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(8)

	for _, s := range summaries {
		if len(s.TopFailures) == 0 {
			continue
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 8, fmt.Sprintf("%s: most frequently missing parameters", s.Stage))
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 9)
		for _, f := range s.TopFailures {
			pdf.Cell(0, 6, fmt.Sprintf("  %s (%d elements)", f.Param, f.Count))
			pdf.Ln(6)
		}
		pdf.Ln(4)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return fmt.Errorf("failed to save PDF file: %w", err)
	}
	return nil
}
