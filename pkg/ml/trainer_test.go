package ml

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loincheck/loincheck-go/pkg/tabular"
)

// labeledTable builds a merged-style table where wide elements were approved
// and narrow ones rejected.
func labeledTable(n int) *tabular.Table {
	t := tabular.NewTable("ElementId", "Category", "Width", "is_missing_Width", "ApprovedLabel")
	for i := 0; i < n; i++ {
		width := 50 + 10*i
		label := "Fail"
		if width >= 50+10*n/2 {
			label = "Pass"
		}
		t.Rows = append(t.Rows, map[string]string{
			"ElementId":        fmt.Sprintf("%d", 100+i),
			"Category":         "Ducts",
			"Width":            fmt.Sprintf("%d mm", width),
			"is_missing_Width": "FALSE",
			"ApprovedLabel":    label,
		})
	}
	return t
}

func TestTrain(t *testing.T) {
	res, err := Train(labeledTable(40), TrainOptions{Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, 40, res.LabeledRows)
	require.NotNil(t, res.Model)
	assert.NotEmpty(t, res.Model.Stumps)
	assert.NotEmpty(t, res.Model.Spec.NumCols)
	// Holdout AUC on cleanly separable data should be high.
	assert.Greater(t, res.ValidationAUC, 0.9)
	assert.Equal(t, res.ValidationAUC, res.Model.ValidationAUC)
}

func TestTrain_SkipsUnlabeledRows(t *testing.T) {
	tbl := labeledTable(10)
	tbl.Rows = append(tbl.Rows, map[string]string{
		"ElementId": "999", "Category": "Ducts", "Width": "100 mm", "ApprovedLabel": "",
	})

	res, err := Train(tbl, TrainOptions{Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 10, res.LabeledRows)
}

func TestTrain_NoLabelColumn(t *testing.T) {
	tbl := tabular.NewTable("ElementId", "Category")
	_, err := Train(tbl, TrainOptions{})
	assert.Error(t, err)
}

func TestTrain_NoLabeledRows(t *testing.T) {
	tbl := tabular.NewTable("ElementId", "Category", "ApprovedLabel")
	tbl.Rows = append(tbl.Rows, map[string]string{"ElementId": "1", "Category": "Walls", "ApprovedLabel": ""})
	_, err := Train(tbl, TrainOptions{})
	assert.Error(t, err)
}

func TestTrain_PositiveLabelSpellings(t *testing.T) {
	tbl := tabular.NewTable("ElementId", "Category", "Width", "ApprovedLabel")
	spellings := []string{"pass", "Approved", "YES", "true", "1", "Fail", "rejected", "0"}
	for i, s := range spellings {
		tbl.Rows = append(tbl.Rows, map[string]string{
			"ElementId":     fmt.Sprintf("%d", i),
			"Category":      "Walls",
			"Width":         fmt.Sprintf("%d", 100+i),
			"ApprovedLabel": s,
		})
	}

	// All rows are labeled; the first five spellings map to the positive
	// class. Training succeeds with both classes present.
	res, err := Train(tbl, TrainOptions{Seed: 1, HoldoutFraction: 0.01})
	require.NoError(t, err)
	assert.Equal(t, len(spellings), res.LabeledRows)
}

func TestStratifiedSplit(t *testing.T) {
	y := make([]int, 100)
	for i := 60; i < 100; i++ {
		y[i] = 1
	}
	train, val := stratifiedSplit(y, 0.3, 42)

	assert.Len(t, train, 70)
	assert.Len(t, val, 30)

	valPos := 0
	for _, i := range val {
		if y[i] == 1 {
			valPos++
		}
	}
	// 30% of each class held out.
	assert.Equal(t, 12, valPos)

	// Deterministic for a fixed seed.
	train2, val2 := stratifiedSplit(y, 0.3, 42)
	assert.Equal(t, train, train2)
	assert.Equal(t, val, val2)
}

func TestScore(t *testing.T) {
	res, err := Train(labeledTable(40), TrainOptions{Seed: 1})
	require.NoError(t, err)

	scored := tabular.NewTable("ElementId", "Category", "LOD_Stage", "loin_pass", "missing_list", "Width", "is_missing_Width")
	scored.Rows = append(scored.Rows,
		map[string]string{
			"ElementId": "501", "Category": "Ducts", "LOD_Stage": "LOD300",
			"loin_pass": "1", "missing_list": "", "Width": "400 mm", "is_missing_Width": "FALSE",
		},
		map[string]string{
			"ElementId": "502", "Category": "Ducts", "LOD_Stage": "LOD300",
			"loin_pass": "0", "missing_list": "Width:lt_min", "Width": "60 mm", "is_missing_Width": "FALSE",
		},
		map[string]string{
			"ElementId": "503", "Category": "Ducts", "LOD_Stage": "LOD300",
			"loin_pass": "1", "missing_list": "", "Width": "60 mm", "is_missing_Width": "FALSE",
		},
	)

	now := func() time.Time { return time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC) }
	out, err := Score(res.Model, scored, ScoreOptions{Threshold: 0.75, Now: now})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ElementId", "Category", "LOD_Stage", "loin_pass", "missing_list",
		"lod_score", "final_status", "checked_on",
	}, out.Headers)
	require.Equal(t, 3, out.Len())

	// Wide element, rules passed, model agrees.
	assert.Equal(t, StatusCompliant, out.Rows[0]["final_status"])
	// Rules failed: Non-compliant regardless of score.
	assert.Equal(t, StatusNonCompliant, out.Rows[1]["final_status"])
	// Rules passed but the model is unconvinced.
	assert.Equal(t, StatusNeedsReview, out.Rows[2]["final_status"])

	for _, r := range out.Rows {
		assert.Equal(t, "2026-08-28 09:30", r["checked_on"])
	}
}

func TestScore_OmitsAbsentColumns(t *testing.T) {
	res, err := Train(labeledTable(40), TrainOptions{Seed: 1})
	require.NoError(t, err)

	scored := tabular.NewTable("ElementId", "Category", "Width", "is_missing_Width")
	scored.Rows = append(scored.Rows, map[string]string{
		"ElementId": "501", "Category": "Ducts", "Width": "400 mm", "is_missing_Width": "FALSE",
	})

	out, err := Score(res.Model, scored, ScoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ElementId", "Category", "loin_pass", "lod_score", "final_status", "checked_on",
	}, out.Headers)
	// Absent loin_pass defaults to passing.
	assert.Equal(t, "1", out.Rows[0]["loin_pass"])
}
