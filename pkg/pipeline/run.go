// Package pipeline orchestrates a full compliance run: load the ruleset and
// model exports, validate every stage, derive labels, merge the review
// tables, and when a trained model is available score the review stage and
// reconcile the predictions with the rule verdicts.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loincheck/loincheck-go/pkg/config"
	"github.com/loincheck/loincheck-go/pkg/labels"
	"github.com/loincheck/loincheck-go/pkg/merge"
	"github.com/loincheck/loincheck-go/pkg/ml"
	"github.com/loincheck/loincheck-go/pkg/rules"
	"github.com/loincheck/loincheck-go/pkg/store"
	"github.com/loincheck/loincheck-go/pkg/tabular"
	"github.com/loincheck/loincheck-go/pkg/validation"
	"github.com/loincheck/loincheck-go/utils"
)

// Runner executes the pipeline described by a Config.
type Runner struct {
	cfg *config.Config
	log *utils.Logger
}

// NewRunner creates a runner over the given configuration.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg, log: utils.GetLogger()}
}

// StageOutcome is one stage's result within a run.
type StageOutcome struct {
	Stage      string
	Summary    validation.Summary
	Verdicts   []validation.Verdict
	Merged     *tabular.Table
	Unresolved []merge.Unresolved
}

// RunResult reports what a full run produced.
type RunResult struct {
	RunID  string
	Stages []StageOutcome
	Scored bool
}

// LoadRules reads the ruleset table, dispatching on the file extension.
func LoadRules(cfg *config.Config) ([]rules.Rule, error) {
	var t *tabular.Table
	var err error
	if strings.EqualFold(filepath.Ext(cfg.Paths.RulesFile), ".xlsx") {
		t, err = tabular.ReadExcel(cfg.Paths.RulesFile, cfg.Paths.RulesSheet)
	} else {
		t, err = tabular.ReadCSV(cfg.Paths.RulesFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}
	return rules.Load(t.Rows, cfg.Stages.Names), nil
}

// Run executes every stage end to end. Missing rule or parameter inputs
// abort the run; a missing geometry file or model only narrows it.
func (r *Runner) Run() (*RunResult, error) {
	started := time.Now()
	log := r.log.WithFields(utils.Component("pipeline"))

	if _, err := os.Stat(r.cfg.Paths.RulesFile); err != nil {
		return nil, fmt.Errorf("rules file not found: %s", r.cfg.Paths.RulesFile)
	}
	if _, err := os.Stat(r.cfg.Paths.ParamsFile); err != nil {
		return nil, fmt.Errorf("params file not found: %s", r.cfg.Paths.ParamsFile)
	}

	ruleset, err := LoadRules(r.cfg)
	if err != nil {
		return nil, err
	}
	log.Info("loaded ruleset", utils.String("file", r.cfg.Paths.RulesFile), utils.Int("rules", len(ruleset)))

	params, err := tabular.ReadCSV(r.cfg.Paths.ParamsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load params: %w", err)
	}
	log.Info("loaded params", utils.String("file", r.cfg.Paths.ParamsFile), utils.Int("rows", params.Len()))

	var geometry []map[string]string
	if r.cfg.Paths.GeometryFile != "" {
		if _, err := os.Stat(r.cfg.Paths.GeometryFile); err == nil {
			geom, err := tabular.ReadCSV(r.cfg.Paths.GeometryFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load geometry: %w", err)
			}
			geometry = geom.Rows
			log.Info("loaded geometry", utils.String("file", r.cfg.Paths.GeometryFile), utils.Int("rows", len(geometry)))
		} else {
			log.Warn("geometry file not found, merging params only", utils.String("file", r.cfg.Paths.GeometryFile))
		}
	}

	result := &RunResult{RunID: store.NewRunID()}
	for _, stage := range r.cfg.Stages.Names {
		outcome, err := r.runStage(stage, ruleset, params, geometry)
		if err != nil {
			return nil, err
		}
		result.Stages = append(result.Stages, *outcome)

		if stage == r.cfg.Stages.ScoreStage && r.modelAvailable() {
			if err := r.scoreStage(outcome); err != nil {
				return nil, err
			}
			result.Scored = true
		}
	}

	if r.cfg.Paths.StoreFile != "" {
		if err := r.recordRun(result, started); err != nil {
			log.Warn("failed to record run history", utils.String("error", err.Error()))
		}
	}
	log.Info("run complete",
		utils.String("run_id", result.RunID),
		utils.Int("stages", len(result.Stages)),
		utils.Bool("scored", result.Scored))
	return result, nil
}

// runStage validates, labels and merges one stage, writing the three
// per-stage output tables.
func (r *Runner) runStage(stage string, ruleset []rules.Rule, params *tabular.Table, geometry []map[string]string) (*StageOutcome, error) {
	log := r.log.WithFields(utils.Component("pipeline"), utils.String("stage", stage))

	verdicts := validation.ValidateStage(params.Rows, ruleset, stage)
	summary := validation.Summarize(stage, verdicts)
	if err := tabular.WriteCSV(r.cfg.VerdictPath(stage), validation.Table(verdicts)); err != nil {
		return nil, fmt.Errorf("failed to write verdicts for %s: %w", stage, err)
	}
	log.Info("stage validated",
		utils.Int("total", summary.Total),
		utils.Int("passed", summary.Passed),
		utils.Int("failed", summary.Failed))

	ls, err := labels.Load(r.cfg.LabelsPath(stage))
	if err != nil {
		return nil, fmt.Errorf("failed to load labels for %s: %w", stage, err)
	}
	if len(ls) == 0 {
		ls = labels.FromVerdicts(verdicts)
		if err := tabular.WriteCSV(r.cfg.LabelsPath(stage), labels.Table(ls)); err != nil {
			return nil, fmt.Errorf("failed to write labels for %s: %w", stage, err)
		}
		log.Info("labels derived from verdicts", utils.Int("labels", len(ls)))
	} else {
		log.Info("labels loaded", utils.Int("labels", len(ls)))
	}

	mandatory := rules.MandatoryParams(ruleset, stage)
	merged := merge.Stage(params.Rows, geometry, mandatory, ls, merge.Options{KeepDuplicates: r.cfg.Merge.KeepDuplicates})
	for _, u := range merged.Unresolved {
		if u.Suggestion != "" {
			log.Warn("mandatory parameter column not found",
				utils.String("param", u.Param),
				utils.String("closest", u.Suggestion))
		} else {
			log.Warn("mandatory parameter column not found", utils.String("param", u.Param))
		}
	}
	if err := tabular.WriteCSV(r.cfg.MergedPath(stage), merged.Table); err != nil {
		return nil, fmt.Errorf("failed to write merged table for %s: %w", stage, err)
	}
	log.Info("stage merged", utils.Int("rows", merged.Table.Len()))

	return &StageOutcome{
		Stage:      stage,
		Summary:    summary,
		Verdicts:   verdicts,
		Merged:     merged.Table,
		Unresolved: merged.Unresolved,
	}, nil
}

// scoreStage scores the review stage's merged table and reconciles the
// predictions with the stage's rule verdicts.
func (r *Runner) scoreStage(outcome *StageOutcome) error {
	log := r.log.WithFields(utils.Component("pipeline"), utils.String("stage", outcome.Stage))

	model, err := ml.LoadModel(r.cfg.Paths.ModelFile)
	if err != nil {
		return err
	}
	scored := withVerdictContext(outcome.Merged, outcome.Verdicts)
	predictions, err := ml.Score(model, scored, ml.ScoreOptions{Threshold: r.cfg.Scoring.Threshold})
	if err != nil {
		return err
	}
	if err := tabular.WriteCSV(r.cfg.PredictionsPath(), predictions); err != nil {
		return fmt.Errorf("failed to write predictions: %w", err)
	}
	log.Info("stage scored", utils.Int("rows", predictions.Len()))

	reconciled := merge.Reconcile(validation.Table(outcome.Verdicts), predictions)
	if err := tabular.WriteCSV(r.cfg.ReconciledPath(), reconciled); err != nil {
		return fmt.Errorf("failed to write reconciled results: %w", err)
	}
	log.Info("results reconciled", utils.Int("rows", reconciled.Len()))
	return nil
}

// Train fits the classifier on the review stage's merged table and saves it
// to the configured model path.
func (r *Runner) Train() (*ml.TrainResult, error) {
	log := r.log.WithFields(utils.Component("trainer"))

	mergedPath := r.cfg.MergedPath(r.cfg.Stages.ScoreStage)
	merged, err := tabular.ReadCSV(mergedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load merged table %s: %w", mergedPath, err)
	}

	res, err := ml.Train(merged, ml.TrainOptions{
		Hyperparameters: ml.Hyperparameters{
			Rounds:       r.cfg.Scoring.Rounds,
			LearningRate: r.cfg.Scoring.LearningRate,
		},
		HoldoutFraction: r.cfg.Scoring.HoldoutFraction,
	})
	if err != nil {
		return nil, err
	}
	if err := res.Model.Save(r.cfg.Paths.ModelFile); err != nil {
		return nil, err
	}
	log.Info("model trained",
		utils.Int("labeled_rows", res.LabeledRows),
		utils.Float("validation_auc", res.ValidationAUC),
		utils.String("model", r.cfg.Paths.ModelFile))
	return res, nil
}

// Predict scores the review stage's merged table with the saved model and,
// when the stage's verdict table exists, reconciles the two.
func (r *Runner) Predict() (*tabular.Table, error) {
	log := r.log.WithFields(utils.Component("scorer"))

	model, err := ml.LoadModel(r.cfg.Paths.ModelFile)
	if err != nil {
		return nil, err
	}
	mergedPath := r.cfg.MergedPath(r.cfg.Stages.ScoreStage)
	merged, err := tabular.ReadCSV(mergedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load merged table %s: %w", mergedPath, err)
	}

	var verdicts *tabular.Table
	verdictPath := r.cfg.VerdictPath(r.cfg.Stages.ScoreStage)
	if _, err := os.Stat(verdictPath); err == nil {
		verdicts, err = tabular.ReadCSV(verdictPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load verdicts %s: %w", verdictPath, err)
		}
		merged = withVerdictContext(merged, validation.FromTable(verdicts))
	}

	predictions, err := ml.Score(model, merged, ml.ScoreOptions{Threshold: r.cfg.Scoring.Threshold})
	if err != nil {
		return nil, err
	}
	if err := tabular.WriteCSV(r.cfg.PredictionsPath(), predictions); err != nil {
		return nil, fmt.Errorf("failed to write predictions: %w", err)
	}
	log.Info("predictions written",
		utils.Int("rows", predictions.Len()),
		utils.String("file", r.cfg.PredictionsPath()))

	if verdicts != nil {
		reconciled := merge.Reconcile(verdicts, predictions)
		if err := tabular.WriteCSV(r.cfg.ReconciledPath(), reconciled); err != nil {
			return nil, fmt.Errorf("failed to write reconciled results: %w", err)
		}
		log.Info("results reconciled",
			utils.Int("rows", reconciled.Len()),
			utils.String("file", r.cfg.ReconciledPath()))
	} else {
		log.Warn("verdict table not found, skipping reconciliation", utils.String("file", verdictPath))
	}
	return predictions, nil
}

// withVerdictContext joins a stage's verdict fields onto the merged rows by
// identity key. The scorer then sees the deterministic loin_pass and can
// never report a rule-failing element as Compliant.
func withVerdictContext(t *tabular.Table, verdicts []validation.Verdict) *tabular.Table {
	index := make(map[merge.Key]validation.Verdict, len(verdicts))
	for _, v := range verdicts {
		k := merge.Key{ElementId: v.ElementId, Category: v.Category}
		if _, ok := index[k]; !ok {
			index[k] = v
		}
	}

	headers := append([]string(nil), t.Headers...)
	for _, c := range []string{"LOD_Stage", "loin_pass", "missing_list"} {
		if !hasColumn(headers, c) {
			headers = append(headers, c)
		}
	}

	out := tabular.NewTable(headers...)
	for _, r := range t.Rows {
		row := make(map[string]string, len(r)+3)
		for k, v := range r {
			row[k] = v
		}
		if v, ok := index[merge.KeyOf(r)]; ok {
			row["LOD_Stage"] = v.LODStage
			row["loin_pass"] = strconv.Itoa(v.LoinPass)
			row["missing_list"] = v.MissingListString()
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func hasColumn(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}

// modelAvailable reports whether a trained model file exists.
func (r *Runner) modelAvailable() bool {
	if r.cfg.Paths.ModelFile == "" {
		return false
	}
	_, err := os.Stat(r.cfg.Paths.ModelFile)
	return err == nil
}

// recordRun persists the run outcome to the history store.
func (r *Runner) recordRun(result *RunResult, started time.Time) error {
	s, err := store.NewSQLiteStore(r.cfg.Paths.StoreFile)
	if err != nil {
		return err
	}
	defer s.Close()

	rec := &store.RunRecord{
		ID:         result.RunID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		RulesFile:  r.cfg.Paths.RulesFile,
		ParamsFile: r.cfg.Paths.ParamsFile,
		Status:     "completed",
		Scored:     result.Scored,
	}
	if result.Scored {
		rec.ScorePath = r.cfg.PredictionsPath()
	}
	for _, st := range result.Stages {
		rec.Stages = append(rec.Stages, store.StageResult{
			Stage:       st.Stage,
			Total:       st.Summary.Total,
			Passed:      st.Summary.Passed,
			Failed:      st.Summary.Failed,
			VerdictPath: r.cfg.VerdictPath(st.Stage),
			MergedPath:  r.cfg.MergedPath(st.Stage),
		})
	}
	return s.SaveRun(rec)
}
