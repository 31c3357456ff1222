// Package service provides the business logic of the price-monitoring pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pricescope/backend/internal/apperror"
	"github.com/pricescope/backend/internal/logger"
	"github.com/pricescope/backend/internal/model"
	"github.com/pricescope/backend/internal/repository"
	"github.com/pricescope/backend/internal/scraper"
)

// RunnerConfig holds job processing settings
type RunnerConfig struct {
	// JobTimeout is the hard wall-clock limit for one job, fetch included.
	// A stuck page fails the job instead of wedging a worker forever.
	JobTimeout time.Duration
	// Workers bounds how many jobs a batch processes concurrently. Each job
	// holds a browser page, so this stays small.
	Workers int
	// MinDelay/MaxDelay add a randomized courtesy pause before each fetch
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultRunnerConfig returns the default runner configuration
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		JobTimeout: 3 * time.Minute,
		Workers:    3,
		MinDelay:   500 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// terminalWriteTimeout bounds the status write that closes out a job.
const terminalWriteTimeout = 10 * time.Second

// terminalCtx detaches the terminal status write from the job's own context.
// When the job failed because its deadline expired, writing FAILED through
// the expired context would fail too and wedge the row in PROCESSING.
func terminalCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

// JobRunner drives a scraping job through its lifecycle: fetch, extract,
// reconcile pricing plans, append history, and record the outcome on the
// job row. It is the only component that mutates jobs.
type JobRunner struct {
	jobs      repository.JobRepository
	tools     repository.ToolRepository
	history   repository.PricingHistoryRepository
	fetcher   scraper.PageFetcher
	extractor *scraper.Extractor
	metrics   *scraper.MetricsCollector
	config    RunnerConfig
	logger    *slog.Logger
}

// NewJobRunner creates a JobRunner
func NewJobRunner(
	jobs repository.JobRepository,
	tools repository.ToolRepository,
	history repository.PricingHistoryRepository,
	fetcher scraper.PageFetcher,
	cfg RunnerConfig,
	logger *slog.Logger,
) *JobRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	return &JobRunner{
		jobs:      jobs,
		tools:     tools,
		history:   history,
		fetcher:   fetcher,
		extractor: scraper.NewExtractor(),
		metrics:   scraper.NewMetricsCollector(),
		config:    cfg,
		logger:    logger,
	}
}

// Run processes one job. The returned error reports the job's outcome to
// the caller; the outcome is already recorded on the job row either way.
// Partial writes committed before a failure stay committed (at-least-once).
func (r *JobRunner) Run(ctx context.Context, job *model.ScrapingJob) error {
	_, err := r.run(ctx, job)
	return err
}

// run is Run plus the number of pricing plans the job extracted
func (r *JobRunner) run(ctx context.Context, job *model.ScrapingJob) (int, error) {
	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.JobTimeout)
		defer cancel()
	}

	ctx = logger.WithJobID(ctx, job.ID.String())
	if job.ToolID != nil {
		ctx = logger.WithToolID(ctx, job.ToolID.String())
	}
	log := r.logger.With(slog.String("job_id", job.ID.String()), slog.String("url", job.URL))

	if err := r.jobs.MarkProcessing(ctx, job.ID); err != nil {
		// Someone else already moved the job (canceled, or picked up twice)
		log.Warn("job not runnable", slog.String("error", err.Error()))
		return 0, err
	}
	job.Status = model.JobStatusProcessing

	result, err := r.process(ctx, job)
	if err != nil {
		log.Error("job failed", slog.String("error", err.Error()))
		r.recordFailure(ctx, job, err, log)
		return 0, err
	}

	payload, err := result.Payload()
	if err != nil {
		err = apperror.Persistence("serialize result payload", err)
		r.recordFailure(ctx, job, err, log)
		return 0, err
	}

	writeCtx, cancel := terminalCtx(ctx)
	defer cancel()
	if err := r.jobs.MarkCompleted(writeCtx, job.ID, payload); err != nil {
		return 0, fmt.Errorf("mark completed: %w", err)
	}
	job.Status = model.JobStatusCompleted
	job.Result = payload

	plans := 0
	if result.Pricing != nil {
		plans = len(result.Pricing.Plans)
	}
	log.Info("job completed", slog.String("type", string(job.Type)), slog.Int("plans", plans))
	return plans, nil
}

// recordFailure writes the FAILED status through a detached context
func (r *JobRunner) recordFailure(ctx context.Context, job *model.ScrapingJob, cause error, log *slog.Logger) {
	writeCtx, cancel := terminalCtx(ctx)
	defer cancel()
	if markErr := r.jobs.MarkFailed(writeCtx, job.ID, cause.Error()); markErr != nil {
		log.Error("failed to record job failure", slog.String("error", markErr.Error()))
	}
	job.Status = model.JobStatusFailed
}

// process runs the fetch, extract, persist sequence
func (r *JobRunner) process(ctx context.Context, job *model.ScrapingJob) (scraper.Result, error) {
	doc, err := r.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		return scraper.Result{}, err
	}

	result := r.extractor.Extract(doc, job.Type)

	// Jobs without a linked tool are exploratory: the payload is stored on
	// the job, nothing flows downstream.
	if job.ToolID == nil {
		return result, nil
	}

	if result.Pricing != nil {
		if err := r.reconcilePlans(ctx, *job.ToolID, result.Pricing.Plans); err != nil {
			return scraper.Result{}, err
		}
		if job.Type == model.JobTypePricing {
			if err := r.appendHistory(ctx, *job.ToolID, result.Pricing.Plans); err != nil {
				return scraper.Result{}, err
			}
		}
	}

	return result, nil
}

// reconcilePlans matches extracted plans against stored pricing plans by
// case-insensitive name: update on hit, create on miss
func (r *JobRunner) reconcilePlans(ctx context.Context, toolID uuid.UUID, plans []scraper.ExtractedPlan) error {
	log := logger.FromContext(ctx)
	for _, extracted := range plans {
		existing, err := r.tools.GetPlanByName(ctx, toolID, extracted.Name)
		switch {
		case err == nil:
			existing.Price = extracted.Price
			existing.IsCustomPricing = extracted.IsCustomPricing
			existing.Features = extracted.Features
			existing.Limitations = extracted.Limitations
			if err := r.tools.UpdatePlan(ctx, existing); err != nil {
				return apperror.Persistence("update plan "+extracted.Name, err)
			}
		case errors.Is(err, apperror.ErrNotFound):
			plan := &model.PricingPlan{
				ToolID:          toolID,
				Name:            extracted.Name,
				Price:           extracted.Price,
				BillingPeriod:   extracted.BillingPeriod,
				IsCustomPricing: extracted.IsCustomPricing,
				Features:        extracted.Features,
				Limitations:     extracted.Limitations,
			}
			if err := r.tools.CreatePlan(ctx, plan); err != nil {
				return apperror.Persistence("create plan "+extracted.Name, err)
			}
			log.Debug("discovered new pricing plan", slog.String("plan", extracted.Name))
		default:
			return apperror.Persistence("look up plan "+extracted.Name, err)
		}
	}
	return nil
}

// appendHistory writes one observation per extracted plan, demoting the
// prior latest entry for the same series key
func (r *JobRunner) appendHistory(ctx context.Context, toolID uuid.UUID, plans []scraper.ExtractedPlan) error {
	for _, plan := range plans {
		entry := &model.PricingHistoryEntry{
			ToolID:        toolID,
			PlanName:      plan.Name,
			BillingPeriod: plan.BillingPeriod,
			Price:         plan.Price,
		}
		if err := r.history.InsertLatest(ctx, entry); err != nil {
			return apperror.Persistence("append history for "+plan.Name, err)
		}
	}
	return nil
}

// ProcessBatch selects up to batchSize pending recurring jobs and runs them
// through a bounded worker pool. Job failures are recorded on the job rows
// and in the metrics; the batch itself only fails on selection errors.
func (r *JobRunner) ProcessBatch(ctx context.Context, batchSize int) (int, error) {
	jobs, err := r.jobs.ListPendingRecurring(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)

	for i := range jobs {
		job := &jobs[i]
		g.Go(func() error {
			r.courtesyDelay(gctx)
			r.metrics.StartJob(job.ID.String())
			plans, err := r.run(gctx, job)
			if err != nil {
				r.metrics.RecordFailure(job.ID.String(), err)
				return nil // isolated: one bad page never sinks the batch
			}
			r.metrics.RecordSuccess(job.ID.String(), plans)
			return nil
		})
	}
	_ = g.Wait()
	r.metrics.FinishBatch()

	summary := r.metrics.GetSummary()
	r.logger.Info("batch processed",
		slog.Int("jobs", len(jobs)),
		slog.Int("succeeded", summary.LastBatchSuccesses),
		slog.Int("failed", summary.LastBatchFailures),
		slog.Duration("duration", summary.LastBatchDuration),
	)
	if summary.LastBatchFailures > 0 {
		for jobID, m := range r.metrics.GetLastBatch() {
			if !m.Success {
				r.logger.Warn("job failed in batch",
					slog.String("job_id", jobID),
					slog.String("error", m.ErrorMessage),
					slog.Duration("duration", m.Duration),
				)
			}
		}
	}
	return len(jobs), nil
}

// Cancel stops a PENDING or PROCESSING job on explicit operator request
func (r *JobRunner) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := r.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !model.CanTransition(job.Status, model.JobStatusCanceled) {
		return apperror.InvalidState(string(job.Status), string(model.JobStatusCanceled))
	}
	return r.jobs.Cancel(ctx, id)
}

// Retry resets a FAILED job to PENDING as a fresh attempt
func (r *JobRunner) Retry(ctx context.Context, id uuid.UUID) error {
	job, err := r.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusFailed {
		return apperror.InvalidState(string(job.Status), string(model.JobStatusPending))
	}
	return r.jobs.ResetForRetry(ctx, id)
}

// Metrics exposes the collector for run summaries
func (r *JobRunner) Metrics() *scraper.MetricsCollector {
	return r.metrics
}

func (r *JobRunner) courtesyDelay(ctx context.Context) {
	if r.config.MaxDelay <= r.config.MinDelay {
		return
	}
	jitter := time.Duration(rand.Int63n(int64(r.config.MaxDelay - r.config.MinDelay)))
	select {
	case <-ctx.Done():
	case <-time.After(r.config.MinDelay + jitter):
	}
}
