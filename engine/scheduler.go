package engine

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs engine requests on cron expressions.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler creates a scheduler using the standard five-field cron syntax.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cron: cron.New(), logger: logger}
}

// Add registers fn under the cron expression expr.
func (s *Scheduler) Add(expr, name string, fn func()) error {
	_, err := s.cron.AddFunc(expr, func() {
		s.logger.Info("scheduled job", zap.String("job", name))
		fn()
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, expr, err)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("expr", expr))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
