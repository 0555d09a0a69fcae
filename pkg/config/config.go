// Package config holds the pipeline's run configuration. Everything the
// original workflow hardcoded, such as the folder layout, the stage taxonomy
// and the score threshold, is an explicit field here so the same logic can
// run against arbitrary input locations and stage sets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Stages   StagesConfig   `yaml:"stages"`
	Merge    MergeConfig    `yaml:"merge"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Logging  LoggingConfig  `yaml:"logging"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// PathsConfig locates every input and output of a run.
type PathsConfig struct {
	// RulesFile is the ruleset table, .csv or .xlsx.
	RulesFile string `yaml:"rules_file"`
	// RulesSheet selects the workbook sheet when RulesFile is .xlsx.
	RulesSheet string `yaml:"rules_sheet"`
	// ParamsFile is the extracted parameter table.
	ParamsFile string `yaml:"params_file"`
	// GeometryFile is the extracted geometry table; optional.
	GeometryFile string `yaml:"geometry_file"`
	// OutputDir receives the per-stage verdict, label and merged tables.
	OutputDir string `yaml:"output_dir"`
	// ModelFile is the trained classifier; optional for rule-only runs.
	ModelFile string `yaml:"model_file"`
	// StoreFile is the SQLite run-history database; empty disables it.
	StoreFile string `yaml:"store_file"`
}

// StagesConfig defines the delivery-stage taxonomy.
type StagesConfig struct {
	// Names are the stage flag columns of the ruleset, in pipeline order.
	Names []string `yaml:"names"`
	// SuffixTrim is removed from a stage name and replaced by
	// SuffixPrefix to build output file suffixes (LOD300 -> L300).
	SuffixTrim   string `yaml:"suffix_trim"`
	SuffixPrefix string `yaml:"suffix_prefix"`
	// ScoreStage is the stage whose merged table is trained on and scored.
	ScoreStage string `yaml:"score_stage"`
}

// MergeConfig controls the merge engine.
type MergeConfig struct {
	KeepDuplicates bool `yaml:"keep_duplicates"`
}

// ScoringConfig controls the classifier.
type ScoringConfig struct {
	Threshold       float64 `yaml:"threshold"`
	Rounds          int     `yaml:"rounds"`
	LearningRate    float64 `yaml:"learning_rate"`
	HoldoutFraction float64 `yaml:"holdout_fraction"`
}

// LoggingConfig mirrors the logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ScheduleConfig enables recurring runs.
type ScheduleConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cron is a standard 5-field cron expression.
	Cron string `yaml:"cron"`
}

// Default returns the built-in configuration: the four-stage LOD taxonomy
// and a data/outputs layout under the working directory.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			RulesFile:    filepath.Join("data", "LOIN_rules_by_LOD.csv"),
			ParamsFile:   filepath.Join("data", "params_export.csv"),
			GeometryFile: filepath.Join("data", "geom_export.csv"),
			OutputDir:    "outputs",
			ModelFile:    filepath.Join("outputs", "lod_model.json"),
		},
		Stages: StagesConfig{
			Names:        []string{"LOD200", "LOD300", "LOD350", "LOD400"},
			SuffixTrim:   "LOD",
			SuffixPrefix: "L",
			ScoreStage:   "LOD300",
		},
		Merge: MergeConfig{KeepDuplicates: true},
		Scoring: ScoringConfig{
			Threshold:       0.75,
			Rounds:          100,
			LearningRate:    0.1,
			HoldoutFraction: 0.3,
		},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Schedule: ScheduleConfig{Enabled: false, Cron: "0 6 * * *"},
	}
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides, then validates. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment overrides selected fields from LOINCHECK_* variables.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("LOINCHECK_RULES_FILE"); v != "" {
		c.Paths.RulesFile = v
	}
	if v := os.Getenv("LOINCHECK_PARAMS_FILE"); v != "" {
		c.Paths.ParamsFile = v
	}
	if v := os.Getenv("LOINCHECK_OUTPUT_DIR"); v != "" {
		c.Paths.OutputDir = v
	}
	if v := os.Getenv("LOINCHECK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOINCHECK_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Scoring.Threshold = f
		}
	}
}

// Validate checks structural invariants. Presence of input files is checked
// at run time so commands that do not need them still work.
func (c *Config) Validate() error {
	if len(c.Stages.Names) == 0 {
		return fmt.Errorf("at least one stage name is required")
	}
	if c.Stages.ScoreStage != "" && !contains(c.Stages.Names, c.Stages.ScoreStage) {
		return fmt.Errorf("score_stage %q is not in the stage list", c.Stages.ScoreStage)
	}
	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 1 {
		return fmt.Errorf("scoring threshold must be in [0,1], got %v", c.Scoring.Threshold)
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}

// StageSuffix maps a stage name to its output-file suffix (LOD300 -> L300).
func (c *Config) StageSuffix(stage string) string {
	return strings.Replace(stage, c.Stages.SuffixTrim, c.Stages.SuffixPrefix, 1)
}

// VerdictPath is the per-stage rule verdict table.
func (c *Config) VerdictPath(stage string) string {
	return filepath.Join(c.Paths.OutputDir, "loin_"+c.StageSuffix(stage)+".csv")
}

// LabelsPath is the per-stage acceptance label table.
func (c *Config) LabelsPath(stage string) string {
	return filepath.Join(c.Paths.OutputDir, "labels_"+c.StageSuffix(stage)+".csv")
}

// MergedPath is the per-stage merged review table.
func (c *Config) MergedPath(stage string) string {
	return filepath.Join(c.Paths.OutputDir, "merged_"+c.StageSuffix(stage)+".csv")
}

// PredictionsPath is the classifier output table.
func (c *Config) PredictionsPath() string {
	return filepath.Join(c.Paths.OutputDir, "results_ai.csv")
}

// ReconciledPath is the final write-back table.
func (c *Config) ReconciledPath() string {
	return filepath.Join(c.Paths.OutputDir, "results_for_revit.csv")
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
