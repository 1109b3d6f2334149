// Package scheduler runs periodic housekeeping jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner whose jobs receive a context that is
// cancelled on Stop.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers fn under a cron schedule such as "@every 5m" or "0 * * * *".
func (s *Scheduler) Add(name, schedule string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		if err := fn(s.ctx); err != nil {
			slog.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		slog.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Jobs reports the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", s.Jobs())
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}
