package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loincheck/loincheck-go/pkg/config"
	"github.com/loincheck/loincheck-go/pkg/pipeline"
)

func TestScheduler_Start_InvalidCron(t *testing.T) {
	s := New(pipeline.NewRunner(config.Default()))
	err := s.Start("not a cron expression")
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(pipeline.NewRunner(config.Default()))
	// A far-future schedule never fires during the test.
	assert.NoError(t, s.Start("0 0 1 1 *"))
	s.Stop()
}
