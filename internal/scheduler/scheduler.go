// Package scheduler wires the pipeline's periodic triggers onto a cron runner.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pricescope/backend/internal/apperror"
	"github.com/pricescope/backend/internal/config"
	"github.com/pricescope/backend/internal/model"
	"github.com/pricescope/backend/internal/repository"
	"github.com/pricescope/backend/internal/service"
)

// triggerTimeout bounds each trigger run; a wedged trigger must not pile up
// behind the next tick
const triggerTimeout = 10 * time.Minute

// Scheduler owns the four periodic triggers of the monitoring pipeline:
// the batch poll that drains pending jobs, the daily change check with
// alert fan-out, the weekly refresh that enqueues pricing jobs, and the
// weekly digest. Trigger failures are logged and absorbed; the cron keeps
// ticking.
type Scheduler struct {
	cron     *cron.Cron
	config   config.SchedulerConfig
	runner   *service.JobRunner
	detector *service.ChangeDetector
	notifier *service.NotificationService
	tools    repository.ToolRepository
	jobs     repository.JobRepository
	batch    int
	logger   *slog.Logger
}

// New creates a Scheduler
func New(
	cfg config.SchedulerConfig,
	runner *service.JobRunner,
	detector *service.ChangeDetector,
	notifier *service.NotificationService,
	tools repository.ToolRepository,
	jobs repository.JobRepository,
	batchSize int,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(),
		config:   cfg,
		runner:   runner,
		detector: detector,
		notifier: notifier,
		tools:    tools,
		jobs:     jobs,
		batch:    batchSize,
		logger:   logger,
	}
}

// Start registers the triggers and starts the cron. Returns an error when a
// configured cron expression does not parse.
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Info("scheduler disabled, skipping start")
		return nil
	}

	triggers := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"batch_poll", fmt.Sprintf("@every %s", s.config.BatchInterval), s.runBatch},
		{"daily_check", s.config.DailyCheck, s.runDailyCheck},
		{"weekly_refresh", s.config.WeeklyRefresh, s.runWeeklyRefresh},
		{"weekly_digest", s.config.WeeklyDigest, s.notifier.SendWeeklyDigest},
	}

	for _, trigger := range triggers {
		trigger := trigger
		_, err := s.cron.AddFunc(trigger.spec, func() {
			s.runTrigger(trigger.name, trigger.run)
		})
		if err != nil {
			return fmt.Errorf("register trigger %s (%q): %w", trigger.name, trigger.spec, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		slog.String("daily_check", s.config.DailyCheck),
		slog.String("weekly_refresh", s.config.WeeklyRefresh),
		slog.String("weekly_digest", s.config.WeeklyDigest),
		slog.Duration("batch_interval", s.config.BatchInterval),
	)
	return nil
}

// Stop stops the cron and returns a context that is done once running
// triggers have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("stopping scheduler")
	return s.cron.Stop()
}

// runTrigger wraps a trigger with a timeout and error absorption
func (s *Scheduler) runTrigger(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()

	start := time.Now()
	if err := run(ctx); err != nil {
		err = apperror.Scheduler(name, err)
		s.logger.Error("trigger failed",
			slog.String("trigger", name),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}
	s.logger.Debug("trigger completed",
		slog.String("trigger", name),
		slog.Duration("duration", time.Since(start)),
	)
}

func (s *Scheduler) runBatch(ctx context.Context) error {
	_, err := s.runner.ProcessBatch(ctx, s.batch)
	return err
}

// runDailyCheck detects price changes and fans matching alerts out
func (s *Scheduler) runDailyCheck(ctx context.Context) error {
	events, err := s.detector.Detect(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	return s.notifier.FanOut(ctx, events)
}

// runWeeklyRefresh enqueues a recurring pricing job for every tool with a
// website, so stored plans never go stale even when nobody touches them
func (s *Scheduler) runWeeklyRefresh(ctx context.Context) error {
	tools, err := s.tools.ListWithWebsite(ctx)
	if err != nil {
		return err
	}

	enqueued := 0
	for i := range tools {
		tool := tools[i]
		job := &model.ScrapingJob{
			URL:      tool.Website,
			Type:     model.JobTypePricing,
			Schedule: model.ScheduleWeekly,
			Status:   model.JobStatusPending,
			ToolID:   &tool.ID,
		}
		if err := s.jobs.Create(ctx, job); err != nil {
			s.logger.Error("failed to enqueue refresh job",
				slog.String("tool_id", tool.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		enqueued++
	}

	s.logger.Info("weekly refresh enqueued",
		slog.Int("tools", len(tools)),
		slog.Int("jobs", enqueued),
	)
	return nil
}
