// Package schedule runs the pipeline on a recurring cron schedule, for
// projects where model exports land in a shared folder on a fixed cadence.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loincheck/loincheck-go/pkg/pipeline"
	"github.com/loincheck/loincheck-go/utils"
)

// Scheduler triggers pipeline runs from a cron expression.
type Scheduler struct {
	cron   *cron.Cron
	runner *pipeline.Runner
	log    *utils.Logger
}

// New creates a scheduler around a runner.
func New(runner *pipeline.Runner) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		log:    utils.GetLogger(),
	}
}

// Start validates the cron expression and begins scheduling. It returns
// immediately; runs happen on the cron goroutine.
func (s *Scheduler) Start(expr string) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.cron.Schedule(schedule, cron.FuncJob(s.execute))
	s.cron.Start()

	next := schedule.Next(time.Now())
	s.log.Info("scheduler started",
		utils.Component("scheduler"),
		utils.String("cron", expr),
		utils.String("next_run", next.Format(time.RFC3339)))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped", utils.Component("scheduler"))
}

// execute performs one scheduled run.
func (s *Scheduler) execute() {
	log := s.log.WithFields(utils.Component("scheduler"))
	log.Info("scheduled run starting")

	result, err := s.runner.Run()
	if err != nil {
		log.Error("scheduled run failed", err)
		return
	}
	log.Info("scheduled run finished",
		utils.String("run_id", result.RunID),
		utils.Int("stages", len(result.Stages)))
}
