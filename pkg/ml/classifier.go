// Package ml implements the acceptance classifier: a small gradient-boosted
// ensemble of decision stumps over the fixed feature contract, with JSON
// model persistence. It supplies the lod_score probability and the derived
// final_status; it never overrides a deterministic rule verdict.
package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/loincheck/loincheck-go/pkg/features"
)

// Stump is one depth-1 regression tree: rows with feature value <= Threshold
// receive Left, the rest Right.
type Stump struct {
	FeatureIndex int     `json:"feature_index"`
	Feature      string  `json:"feature"`
	Threshold    float64 `json:"threshold"`
	Left         float64 `json:"left"`
	Right        float64 `json:"right"`
}

// Model is a boosted-stump binary classifier with its feature spec attached,
// so scoring rebuilds the training-time matrix exactly.
type Model struct {
	InitScore     float64       `json:"init_score"`
	LearningRate  float64       `json:"learning_rate"`
	Stumps        []Stump       `json:"stumps"`
	FeatureNames  []string      `json:"feature_names"`
	Spec          features.Spec `json:"meta"`
	TrainedRows   int           `json:"trained_rows"`
	ValidationAUC float64       `json:"validation_auc"`
}

// Hyperparameters for training. Zero values fall back to defaults.
type Hyperparameters struct {
	Rounds       int
	LearningRate float64
	// MaxThresholds caps candidate split points per feature, taken as
	// quantiles of the observed values.
	MaxThresholds int
}

func (h Hyperparameters) withDefaults() Hyperparameters {
	if h.Rounds <= 0 {
		h.Rounds = 100
	}
	if h.LearningRate <= 0 {
		h.LearningRate = 0.1
	}
	if h.MaxThresholds <= 0 {
		h.MaxThresholds = 16
	}
	return h
}

// Fit trains the ensemble on a feature matrix and 0/1 targets.
func Fit(m *features.Matrix, y []int, hp Hyperparameters) (*Model, error) {
	if len(m.Rows) == 0 {
		return nil, fmt.Errorf("empty training data")
	}
	if len(m.Rows) != len(y) {
		return nil, fmt.Errorf("feature matrix and targets must have the same length")
	}
	hp = hp.withDefaults()

	n := len(m.Rows)
	pos := 0
	for _, v := range y {
		if v == 1 {
			pos++
		}
	}
	p0 := clampProbability(float64(pos) / float64(n))
	model := &Model{
		InitScore:    math.Log(p0 / (1 - p0)),
		LearningRate: hp.LearningRate,
		FeatureNames: m.Columns,
		Spec:         features.Spec{},
		TrainedRows:  n,
	}

	thresholds := candidateThresholds(m, hp.MaxThresholds)

	score := make([]float64, n)
	for i := range score {
		score[i] = model.InitScore
	}
	residual := make([]float64, n)
	hessian := make([]float64, n)

	for round := 0; round < hp.Rounds; round++ {
		for i := range score {
			p := sigmoid(score[i])
			residual[i] = float64(y[i]) - p
			hessian[i] = p * (1 - p)
		}
		stump, ok := bestStump(m, residual, hessian, thresholds)
		if !ok {
			break
		}
		model.Stumps = append(model.Stumps, stump)
		for i, row := range m.Rows {
			score[i] += hp.LearningRate * stump.apply(row)
		}
	}
	return model, nil
}

// PredictProba returns the probability of the positive class for each row.
func (m *Model) PredictProba(x *features.Matrix) ([]float64, error) {
	if len(x.Columns) != len(m.FeatureNames) {
		return nil, fmt.Errorf("expected %d features, got %d", len(m.FeatureNames), len(x.Columns))
	}
	out := make([]float64, len(x.Rows))
	for i, row := range x.Rows {
		s := m.InitScore
		for _, st := range m.Stumps {
			s += m.LearningRate * st.apply(row)
		}
		out[i] = sigmoid(s)
	}
	return out, nil
}

// Save writes the model as indented JSON.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

// LoadModel reads a model written by Save.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}
	return &m, nil
}

func (s Stump) apply(row []float64) float64 {
	if row[s.FeatureIndex] <= s.Threshold {
		return s.Left
	}
	return s.Right
}

// bestStump scans every (feature, threshold) pair for the split minimizing
// squared residual error, with Newton-step leaf values.
func bestStump(m *features.Matrix, residual, hessian []float64, thresholds [][]float64) (Stump, bool) {
	const eps = 1e-9

	var best Stump
	bestGain := 0.0
	found := false

	totalR, totalH := 0.0, 0.0
	for i := range residual {
		totalR += residual[i]
		totalH += hessian[i]
	}
	parent := totalR * totalR / (totalH + eps)

	for f := range m.Columns {
		for _, th := range thresholds[f] {
			var leftR, leftH float64
			for i, row := range m.Rows {
				if row[f] <= th {
					leftR += residual[i]
					leftH += hessian[i]
				}
			}
			rightR := totalR - leftR
			rightH := totalH - leftH
			if leftH < eps || rightH < eps {
				continue
			}
			gain := leftR*leftR/(leftH+eps) + rightR*rightR/(rightH+eps) - parent
			if gain > bestGain {
				bestGain = gain
				best = Stump{
					FeatureIndex: f,
					Feature:      m.Columns[f],
					Threshold:    th,
					Left:         leftR / (leftH + eps),
					Right:        rightR / (rightH + eps),
				}
				found = true
			}
		}
	}
	return best, found
}

// candidateThresholds picks split points per feature: quantile cuts of the
// observed values, capped at maxPerFeature.
func candidateThresholds(m *features.Matrix, maxPerFeature int) [][]float64 {
	out := make([][]float64, len(m.Columns))
	values := make([]float64, len(m.Rows))
	for f := range m.Columns {
		for i, row := range m.Rows {
			values[i] = row[f]
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)

		uniq := sorted[:0]
		for i, v := range sorted {
			if i == 0 || v != uniq[len(uniq)-1] {
				uniq = append(uniq, v)
			}
		}
		if len(uniq) < 2 {
			out[f] = nil
			continue
		}
		if len(uniq) <= maxPerFeature+1 {
			ths := make([]float64, 0, len(uniq)-1)
			for i := 0; i < len(uniq)-1; i++ {
				ths = append(ths, (uniq[i]+uniq[i+1])/2)
			}
			out[f] = ths
			continue
		}
		ths := make([]float64, 0, maxPerFeature)
		for i := 1; i <= maxPerFeature; i++ {
			q := float64(i) / float64(maxPerFeature+1)
			ths = append(ths, stat.Quantile(q, stat.Empirical, uniq, nil))
		}
		out[f] = dedupFloats(ths)
	}
	return out
}

func dedupFloats(xs []float64) []float64 {
	sort.Float64s(xs)
	out := xs[:0]
	for i, v := range xs {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clampProbability(p float64) float64 {
	const eps = 1e-6
	return math.Min(1-eps, math.Max(eps, p))
}
