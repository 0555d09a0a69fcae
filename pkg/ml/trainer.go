package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/loincheck/loincheck-go/pkg/clean"
	"github.com/loincheck/loincheck-go/pkg/features"
	"github.com/loincheck/loincheck-go/pkg/tabular"
)

// positiveLabels are the ApprovedLabel spellings treated as the positive
// class, lowercased.
var positiveLabels = map[string]bool{
	"pass": true, "approved": true, "yes": true, "true": true, "1": true,
}

// TrainOptions configures a training run.
type TrainOptions struct {
	Hyperparameters Hyperparameters
	// HoldoutFraction of labeled rows reserved for validation. Defaults
	// to 0.3.
	HoldoutFraction float64
	// Seed for the split shuffle; a fixed default keeps runs reproducible.
	Seed int64
}

// TrainResult reports what the trainer produced.
type TrainResult struct {
	Model         *Model
	LabeledRows   int
	ValidationAUC float64
}

// Train fits the classifier on a merged table. Only rows with a non-blank
// ApprovedLabel participate; labels are mapped to 0/1, the feature spec is
// derived from the table, and a stratified holdout split measures AUC.
func Train(t *tabular.Table, opts TrainOptions) (*TrainResult, error) {
	if !hasHeader(t, "ApprovedLabel") {
		return nil, fmt.Errorf("ApprovedLabel column missing from training table")
	}

	labeled := tabular.NewTable(t.Headers...)
	var y []int
	for _, r := range t.Rows {
		lab := clean.Normalize(r["ApprovedLabel"])
		if lab == "" {
			continue
		}
		labeled.Rows = append(labeled.Rows, r)
		if positiveLabels[strings.ToLower(lab)] {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}
	if labeled.Len() == 0 {
		return nil, fmt.Errorf("no labeled rows found (ApprovedLabel empty)")
	}

	spec := features.DeriveSpec(labeled)
	matrix, err := features.Build(labeled, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build features: %w", err)
	}

	if opts.HoldoutFraction <= 0 || opts.HoldoutFraction >= 1 {
		opts.HoldoutFraction = 0.3
	}
	trainIdx, valIdx := stratifiedSplit(y, opts.HoldoutFraction, opts.Seed)

	model, err := Fit(subsetMatrix(matrix, trainIdx), subsetInts(y, trainIdx), opts.Hyperparameters)
	if err != nil {
		return nil, err
	}
	model.Spec = spec

	auc := math.NaN()
	if len(valIdx) > 0 {
		proba, err := model.PredictProba(subsetMatrix(matrix, valIdx))
		if err != nil {
			return nil, err
		}
		auc = AUC(proba, subsetInts(y, valIdx))
	}
	// NaN is not representable in the JSON model file; an unmeasurable AUC
	// is stored as 0 there while the result keeps the honest NaN.
	model.ValidationAUC = auc
	if math.IsNaN(auc) {
		model.ValidationAUC = 0
	}

	return &TrainResult{Model: model, LabeledRows: labeled.Len(), ValidationAUC: auc}, nil
}

// AUC computes the area under the ROC curve for scores against 0/1 targets.
// Returns NaN when only one class is present.
func AUC(scores []float64, y []int) float64 {
	type pair struct {
		score float64
		pos   bool
	}
	pairs := make([]pair, len(scores))
	npos := 0
	for i, s := range scores {
		pairs[i] = pair{score: s, pos: y[i] == 1}
		if y[i] == 1 {
			npos++
		}
	}
	if npos == 0 || npos == len(y) {
		return math.NaN()
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	ys := make([]float64, len(pairs))
	classes := make([]bool, len(pairs))
	for i, p := range pairs {
		ys[i] = p.score
		classes[i] = p.pos
	}
	tpr, fpr, _ := stat.ROC(nil, ys, classes, nil)

	area := 0.0
	for i := 1; i < len(fpr); i++ {
		area += (fpr[i] - fpr[i-1]) * (tpr[i] + tpr[i-1]) / 2
	}
	return math.Abs(area)
}

// stratifiedSplit shuffles indices within each class and reserves the given
// fraction of each for validation.
func stratifiedSplit(y []int, holdout float64, seed int64) (train, val []int) {
	rng := rand.New(rand.NewSource(seed))
	byClass := map[int][]int{}
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}
	for _, class := range []int{0, 1} {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		cut := int(float64(len(idx)) * holdout)
		val = append(val, idx[:cut]...)
		train = append(train, idx[cut:]...)
	}
	sort.Ints(train)
	sort.Ints(val)
	return train, val
}

func subsetMatrix(m *features.Matrix, idx []int) *features.Matrix {
	out := &features.Matrix{Columns: m.Columns, Rows: make([][]float64, 0, len(idx))}
	for _, i := range idx {
		out.Rows = append(out.Rows, m.Rows[i])
	}
	return out
}

func subsetInts(xs []int, idx []int) []int {
	out := make([]int, 0, len(idx))
	for _, i := range idx {
		out = append(out, xs[i])
	}
	return out
}

func hasHeader(t *tabular.Table, name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}
