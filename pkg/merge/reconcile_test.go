package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loincheck/loincheck-go/pkg/tabular"
)

func verdictTable(rows ...map[string]string) *tabular.Table {
	t := tabular.NewTable("ElementId", "Category", "LOD_Stage", "loin_pass", "missing_list")
	t.Rows = rows
	return t
}

func predictionTable(rows ...map[string]string) *tabular.Table {
	t := tabular.NewTable("ElementId", "Category", "loin_pass", "lod_score", "final_status", "checked_on")
	t.Rows = rows
	return t
}

func TestReconcile_VerdictWinsOnOverlap(t *testing.T) {
	verdicts := verdictTable(map[string]string{
		"ElementId": "101", "Category": "Walls", "LOD_Stage": "LOD300",
		"loin_pass": "0", "missing_list": "Fire Rating:missing",
	})
	predictions := predictionTable(map[string]string{
		"ElementId": "101", "Category": "Walls", "loin_pass": "1",
		"lod_score": "0.91", "final_status": "Compliant", "checked_on": "2026-08-28 09:00",
	})

	out := Reconcile(verdicts, predictions)
	require.Equal(t, 1, out.Len())
	row := out.Rows[0]

	// The deterministic verdict overrides the model's opinion of loin_pass.
	assert.Equal(t, "0", row["loin_pass"])
	assert.Equal(t, "Fire Rating:missing", row["missing_list"])
	assert.Equal(t, "LOD300", row["LOD_Stage"])
	// Prediction-only context comes through untouched.
	assert.Equal(t, "0.91", row["lod_score"])
	assert.Equal(t, "Compliant", row["final_status"])
	assert.Equal(t, "2026-08-28 09:00", row["checked_on"])
}

func TestReconcile_PredictionFillsGaps(t *testing.T) {
	verdicts := verdictTable(map[string]string{
		"ElementId": "101", "Category": "Walls", "loin_pass": "", "missing_list": "",
	})
	predictions := predictionTable(map[string]string{
		"ElementId": "101", "Category": "Walls", "loin_pass": "1",
		"lod_score": "0.42", "final_status": "Needs Review",
	})

	out := Reconcile(verdicts, predictions)
	row := out.Rows[0]
	assert.Equal(t, "1", row["loin_pass"])
}

func TestReconcile_DefaultsLoinPassToOne(t *testing.T) {
	// No verdict row and a prediction with no loin_pass of its own.
	predictions := predictionTable(map[string]string{
		"ElementId": "999", "Category": "Furniture", "lod_score": "0.10",
	})

	out := Reconcile(verdictTable(), predictions)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "1", out.Rows[0]["loin_pass"])
}

func TestReconcile_OneRowPerPrediction(t *testing.T) {
	verdicts := verdictTable(
		map[string]string{"ElementId": "101", "Category": "Walls", "loin_pass": "1"},
		map[string]string{"ElementId": "102", "Category": "Walls", "loin_pass": "0"},
	)
	// Only one element was scored.
	predictions := predictionTable(map[string]string{
		"ElementId": "102", "Category": "Walls", "lod_score": "0.2", "final_status": "Needs Review",
	})

	out := Reconcile(verdicts, predictions)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "102", out.Rows[0]["ElementId"])
	assert.Equal(t, "0", out.Rows[0]["loin_pass"])
}

func TestReconcile_ColumnContract(t *testing.T) {
	out := Reconcile(verdictTable(), predictionTable())
	assert.Equal(t, []string{
		"ElementId", "Category", "LOD_Stage", "loin_pass", "missing_list",
		"lod_score", "final_status", "checked_on",
	}, out.Headers)
}
