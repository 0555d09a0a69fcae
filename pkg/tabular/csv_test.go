package tabular

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeFile(t, "params.csv",
		"\uFEFFElementId,Category, Width \n"+
			"101, Walls ,150\n"+
			"102,Ducts,\n")

	tbl, err := ReadCSV(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ElementId", "Category", "Width"}, tbl.Headers)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "101", tbl.Rows[0]["ElementId"])
	assert.Equal(t, "Walls", tbl.Rows[0]["Category"])
	assert.Equal(t, "150", tbl.Rows[0]["Width"])
	assert.Equal(t, "", tbl.Rows[1]["Width"])
}

func TestReadCSV_DropsEmptyHeaderColumns(t *testing.T) {
	path := writeFile(t, "params.csv",
		"ElementId,,Category\n"+
			"101,junk,Walls\n")

	tbl, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ElementId", "Category"}, tbl.Headers)
	assert.Equal(t, "Walls", tbl.Rows[0]["Category"])
	assert.NotContains(t, tbl.Rows[0], "")
}

func TestReadCSV_RaggedRows(t *testing.T) {
	path := writeFile(t, "params.csv",
		"ElementId,Category,Width\n"+
			"101,Walls\n"+
			"102,Ducts,150,extra\n")

	tbl, err := ReadCSV(path)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "", tbl.Rows[0]["Width"])
	assert.Equal(t, "150", tbl.Rows[1]["Width"])
}

func TestReadCSV_MissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	tbl := NewTable("ElementId", "Category", "Width")
	tbl.Rows = append(tbl.Rows,
		map[string]string{"ElementId": "101", "Category": "Walls", "Width": "150"},
		map[string]string{"ElementId": "102", "Category": "Ducts, small", "Width": ""},
	)

	path := filepath.Join(t.TempDir(), "out", "table.csv")
	require.NoError(t, WriteCSV(path, tbl))

	// The writer emits a BOM so spreadsheet tools detect UTF-8.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\uFEFF", string(data[:3]))

	back, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Headers, back.Headers)
	require.Equal(t, tbl.Len(), back.Len())
	assert.Equal(t, "Ducts, small", back.Rows[1]["Category"])
}

func TestTable_Append(t *testing.T) {
	tbl := NewTable("A")
	tbl.Append(map[string]string{"A": "1"})
	tbl.Append(map[string]string{"A": "2", "C": "3", "B": "4"})

	// New columns join the header set in sorted order.
	assert.Equal(t, []string{"A", "B", "C"}, tbl.Headers)
	assert.Equal(t, 2, tbl.Len())
}
