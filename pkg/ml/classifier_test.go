package ml

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loincheck/loincheck-go/pkg/features"
)

// separableMatrix builds a toy problem where the first feature perfectly
// separates the classes.
func separableMatrix() (*features.Matrix, []int) {
	m := &features.Matrix{Columns: []string{"x", "noise"}}
	var y []int
	for i := 0; i < 20; i++ {
		x := float64(i)
		m.Rows = append(m.Rows, []float64{x, float64(i % 3)})
		if x >= 10 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}
	return m, y
}

func TestFit_SeparableData(t *testing.T) {
	m, y := separableMatrix()
	model, err := Fit(m, y, Hyperparameters{Rounds: 50})
	require.NoError(t, err)
	require.NotEmpty(t, model.Stumps)

	proba, err := model.PredictProba(m)
	require.NoError(t, err)
	for i, p := range proba {
		if y[i] == 1 {
			assert.Greater(t, p, 0.5, "row %d", i)
		} else {
			assert.Less(t, p, 0.5, "row %d", i)
		}
	}
}

func TestFit_EmptyData(t *testing.T) {
	_, err := Fit(&features.Matrix{Columns: []string{"x"}}, nil, Hyperparameters{})
	assert.Error(t, err)
}

func TestFit_LengthMismatch(t *testing.T) {
	m := &features.Matrix{Columns: []string{"x"}, Rows: [][]float64{{1}, {2}}}
	_, err := Fit(m, []int{1}, Hyperparameters{})
	assert.Error(t, err)
}

func TestModel_PredictProba_ColumnMismatch(t *testing.T) {
	m, y := separableMatrix()
	model, err := Fit(m, y, Hyperparameters{Rounds: 5})
	require.NoError(t, err)

	_, err = model.PredictProba(&features.Matrix{Columns: []string{"x"}})
	assert.Error(t, err)
}

func TestModel_SaveLoad(t *testing.T) {
	m, y := separableMatrix()
	model, err := Fit(m, y, Hyperparameters{Rounds: 10})
	require.NoError(t, err)
	model.Spec = features.Spec{
		CatCols: []string{"Category"},
		NumCols: []string{"x"},
		Levels:  map[string][]string{"Category": {"Walls"}},
	}

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, model.Save(path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, model.InitScore, loaded.InitScore)
	assert.Equal(t, model.Stumps, loaded.Stumps)
	assert.Equal(t, model.Spec, loaded.Spec)

	// Loaded model predicts identically.
	want, err := model.PredictProba(m)
	require.NoError(t, err)
	got, err := loaded.PredictProba(m)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestLoadModel_MissingFile(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestAUC(t *testing.T) {
	// Perfect ranking.
	auc := AUC([]float64{0.1, 0.2, 0.8, 0.9}, []int{0, 0, 1, 1})
	assert.InDelta(t, 1.0, auc, 1e-9)

	// Inverted ranking.
	auc = AUC([]float64{0.9, 0.8, 0.2, 0.1}, []int{0, 0, 1, 1})
	assert.InDelta(t, 0.0, auc, 1e-9)

	// One class only.
	assert.True(t, math.IsNaN(AUC([]float64{0.5, 0.6}, []int{1, 1})))
}
