// Command loincheck runs the LOD/LOIN compliance pipeline: rule validation
// of model exports, label derivation, review-table merging, classifier
// training and scoring, and reconciliation of the final write-back table.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loincheck/loincheck-go/pkg/config"
	"github.com/loincheck/loincheck-go/pkg/labels"
	"github.com/loincheck/loincheck-go/pkg/merge"
	"github.com/loincheck/loincheck-go/pkg/pipeline"
	"github.com/loincheck/loincheck-go/pkg/report"
	"github.com/loincheck/loincheck-go/pkg/rules"
	"github.com/loincheck/loincheck-go/pkg/schedule"
	"github.com/loincheck/loincheck-go/pkg/tabular"
	"github.com/loincheck/loincheck-go/pkg/validation"
	"github.com/loincheck/loincheck-go/utils"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "loincheck",
		Short: "LOD/LOIN compliance checking for BIM model exports",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(
		runCommand(&cfg),
		validateCommand(&cfg),
		labelsCommand(&cfg),
		mergeCommand(&cfg),
		trainCommand(&cfg),
		predictCommand(&cfg),
		reconcileCommand(&cfg),
		reportCommand(&cfg),
		scheduleCommand(&cfg),
	)
	return rootCmd
}

// runCommand executes the full pipeline end to end.
func runCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Validate, label, merge and (when a model exists) score every stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := pipeline.NewRunner(*cfg).Run()
			if err != nil {
				return err
			}
			for _, st := range result.Stages {
				fmt.Printf("%s: %d elements, %d passed, %d failed\n",
					st.Stage, st.Summary.Total, st.Summary.Passed, st.Summary.Failed)
			}
			if result.Scored {
				fmt.Printf("predictions: %s\n", (*cfg).PredictionsPath())
				fmt.Printf("reconciled:  %s\n", (*cfg).ReconciledPath())
			}
			return nil
		},
	}
}

// validateCommand runs rule validation only and writes the verdict tables.
func validateCommand(cfg **config.Config) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Apply the ruleset to the parameter export and write verdict tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			ruleset, err := pipeline.LoadRules(c)
			if err != nil {
				return err
			}
			params, err := tabular.ReadCSV(c.Paths.ParamsFile)
			if err != nil {
				return fmt.Errorf("failed to load params: %w", err)
			}
			for _, s := range stagesToProcess(c, stage) {
				verdicts := validation.ValidateStage(params.Rows, ruleset, s)
				if err := tabular.WriteCSV(c.VerdictPath(s), validation.Table(verdicts)); err != nil {
					return err
				}
				sum := validation.Summarize(s, verdicts)
				fmt.Printf("%s: %d elements, %d passed, %d failed -> %s\n",
					s, sum.Total, sum.Passed, sum.Failed, c.VerdictPath(s))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Process a single stage instead of all")
	return cmd
}

// labelsCommand derives acceptance labels from existing verdict tables.
func labelsCommand(cfg **config.Config) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Derive Pass/Fail acceptance labels from the verdict tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			for _, s := range stagesToProcess(c, stage) {
				verdicts, err := tabular.ReadCSV(c.VerdictPath(s))
				if err != nil {
					return fmt.Errorf("failed to load verdicts for %s: %w", s, err)
				}
				ls := labels.FromVerdictTable(verdicts)
				if err := tabular.WriteCSV(c.LabelsPath(s), labels.Table(ls)); err != nil {
					return err
				}
				fmt.Printf("%s: %d labels -> %s\n", s, len(ls), c.LabelsPath(s))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Process a single stage instead of all")
	return cmd
}

// mergeCommand builds the merged review tables from params, geometry and labels.
func mergeCommand(cfg **config.Config) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge parameters, geometry and labels into the review tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			ruleset, err := pipeline.LoadRules(c)
			if err != nil {
				return err
			}
			params, err := tabular.ReadCSV(c.Paths.ParamsFile)
			if err != nil {
				return fmt.Errorf("failed to load params: %w", err)
			}
			var geometry []map[string]string
			if c.Paths.GeometryFile != "" {
				if _, err := os.Stat(c.Paths.GeometryFile); err == nil {
					geom, err := tabular.ReadCSV(c.Paths.GeometryFile)
					if err != nil {
						return fmt.Errorf("failed to load geometry: %w", err)
					}
					geometry = geom.Rows
				}
			}
			for _, s := range stagesToProcess(c, stage) {
				ls, err := labels.Load(c.LabelsPath(s))
				if err != nil {
					return err
				}
				mandatory := rules.MandatoryParams(ruleset, s)
				res := merge.Stage(params.Rows, geometry, mandatory, ls, merge.Options{KeepDuplicates: c.Merge.KeepDuplicates})
				for _, u := range res.Unresolved {
					if u.Suggestion != "" {
						fmt.Printf("%s: column %q not found (closest: %q)\n", s, u.Param, u.Suggestion)
					} else {
						fmt.Printf("%s: column %q not found\n", s, u.Param)
					}
				}
				if err := tabular.WriteCSV(c.MergedPath(s), res.Table); err != nil {
					return err
				}
				fmt.Printf("%s: %d rows -> %s\n", s, res.Table.Len(), c.MergedPath(s))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Process a single stage instead of all")
	return cmd
}

// trainCommand fits the classifier on the review stage's merged table.
func trainCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train the acceptance classifier on the merged review table",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := pipeline.NewRunner(*cfg).Train()
			if err != nil {
				return err
			}
			fmt.Printf("trained on %d labeled rows, validation AUC %.3f -> %s\n",
				res.LabeledRows, res.ValidationAUC, (*cfg).Paths.ModelFile)
			return nil
		},
	}
}

// predictCommand scores the merged table and reconciles with the verdicts.
func predictCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "Score the merged review table with the trained model",
		RunE: func(cmd *cobra.Command, args []string) error {
			predictions, err := pipeline.NewRunner(*cfg).Predict()
			if err != nil {
				return err
			}
			fmt.Printf("%d predictions -> %s\n", predictions.Len(), (*cfg).PredictionsPath())
			return nil
		},
	}
}

// reconcileCommand joins an existing verdict table with an existing
// prediction table into the write-back table.
func reconcileCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Join rule verdicts with model predictions into the write-back table",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			verdicts, err := tabular.ReadCSV(c.VerdictPath(c.Stages.ScoreStage))
			if err != nil {
				return fmt.Errorf("failed to load verdicts: %w", err)
			}
			predictions, err := tabular.ReadCSV(c.PredictionsPath())
			if err != nil {
				return fmt.Errorf("failed to load predictions: %w", err)
			}
			reconciled := merge.Reconcile(verdicts, predictions)
			if err := tabular.WriteCSV(c.ReconciledPath(), reconciled); err != nil {
				return err
			}
			fmt.Printf("%d rows -> %s\n", reconciled.Len(), c.ReconciledPath())
			return nil
		},
	}
}

// reportCommand renders the PDF summary and optional Excel export.
func reportCommand(cfg **config.Config) *cobra.Command {
	var pdfPath, excelPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a PDF summary of the verdict tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			var summaries []report.StageSummary
			for _, s := range c.Stages.Names {
				t, err := tabular.ReadCSV(c.VerdictPath(s))
				if err != nil {
					return fmt.Errorf("failed to load verdicts for %s: %w", s, err)
				}
				summaries = append(summaries, report.Summarize(s, validation.FromTable(t), 10))
			}
			if err := report.WritePDF(pdfPath, "LOIN Compliance Summary", summaries); err != nil {
				return err
			}
			fmt.Printf("report -> %s\n", pdfPath)

			if excelPath != "" {
				reconciled, err := tabular.ReadCSV(c.ReconciledPath())
				if err != nil {
					return fmt.Errorf("failed to load reconciled results: %w", err)
				}
				if err := report.WriteExcel(excelPath, "Results", reconciled); err != nil {
					return err
				}
				fmt.Printf("excel -> %s\n", excelPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "out", "outputs/loin_report.pdf", "PDF output path")
	cmd.Flags().StringVar(&excelPath, "excel", "", "Also export the reconciled results to this .xlsx path")
	return cmd
}

// scheduleCommand runs the pipeline on the configured cron schedule until
// interrupted.
func scheduleCommand(cfg **config.Config) *cobra.Command {
	var cronExpr string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a recurring cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			expr := cronExpr
			if expr == "" {
				expr = c.Schedule.Cron
			}
			sched := schedule.New(pipeline.NewRunner(c))
			if err := sched.Start(expr); err != nil {
				return err
			}
			defer sched.Stop()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return nil
		},
	}
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (overrides the config)")
	return cmd
}

// stagesToProcess returns the configured stages, or just the requested one.
func stagesToProcess(c *config.Config, stage string) []string {
	if stage == "" {
		return c.Stages.Names
	}
	return []string{stage}
}
