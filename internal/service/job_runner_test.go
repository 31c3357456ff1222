package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pricescope/backend/internal/apperror"
	"github.com/pricescope/backend/internal/model"
)

type mockJobRepo struct {
	mock.Mock
}

func (m *mockJobRepo) Create(ctx context.Context, job *model.ScrapingJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *mockJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.ScrapingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScrapingJob), args.Error(1)
}

func (m *mockJobRepo) ListPendingRecurring(ctx context.Context, limit int) ([]model.ScrapingJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScrapingJob), args.Error(1)
}

func (m *mockJobRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockJobRepo) MarkCompleted(ctx context.Context, id uuid.UUID, result []byte) error {
	return m.Called(ctx, id, result).Error(0)
}

func (m *mockJobRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

func (m *mockJobRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockJobRepo) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type mockToolRepo struct {
	mock.Mock
}

func (m *mockToolRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Tool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tool), args.Error(1)
}

func (m *mockToolRepo) ListWithWebsite(ctx context.Context) ([]model.Tool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Tool), args.Error(1)
}

func (m *mockToolRepo) GetPlanByName(ctx context.Context, toolID uuid.UUID, name string) (*model.PricingPlan, error) {
	args := m.Called(ctx, toolID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PricingPlan), args.Error(1)
}

func (m *mockToolRepo) CreatePlan(ctx context.Context, plan *model.PricingPlan) error {
	return m.Called(ctx, plan).Error(0)
}

func (m *mockToolRepo) UpdatePlan(ctx context.Context, plan *model.PricingPlan) error {
	return m.Called(ctx, plan).Error(0)
}

type mockHistoryRepo struct {
	mock.Mock
}

func (m *mockHistoryRepo) InsertLatest(ctx context.Context, entry *model.PricingHistoryEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockHistoryRepo) ListLatest(ctx context.Context) ([]model.PricingHistoryEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PricingHistoryEntry), args.Error(1)
}

func (m *mockHistoryRepo) ListPrevious(ctx context.Context) ([]model.PricingHistoryEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PricingHistoryEntry), args.Error(1)
}

func (m *mockHistoryRepo) ListByKey(ctx context.Context, key model.HistoryKey, limit int) ([]model.PricingHistoryEntry, error) {
	args := m.Called(ctx, key, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PricingHistoryEntry), args.Error(1)
}

// stubFetcher serves a canned document or error instead of driving a browser
type stubFetcher struct {
	doc *goquery.Document
	err error
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (*goquery.Document, error) {
	return f.doc, f.err
}

// hangingFetcher blocks until the job context expires, like a page that
// never finishes loading
type hangingFetcher struct{}

func (f *hangingFetcher) Fetch(ctx context.Context, _ string) (*goquery.Document, error) {
	<-ctx.Done()
	return nil, apperror.Fetch("navigate", ctx.Err())
}

const runnerPricingHTML = `
<html><body>
<div class="pricing-section">
	<div class="pricing-card">
		<h3 class="plan-name">Pro</h3>
		<div class="price">$25/month</div>
		<ul class="features"><li>Unlimited projects</li></ul>
	</div>
</div>
</body></html>`

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{JobTimeout: time.Minute, Workers: 2}
}

func pricingJob(toolID *uuid.UUID) *model.ScrapingJob {
	return &model.ScrapingJob{
		ID:       uuid.New(),
		URL:      "https://example.com/pricing",
		Type:     model.JobTypePricing,
		Schedule: model.ScheduleWeekly,
		Status:   model.JobStatusPending,
		ToolID:   toolID,
	}
}

func TestJobRunner_RunCreatesNewPlanAndHistory(t *testing.T) {
	t.Parallel()

	toolID := uuid.New()
	job := pricingJob(&toolID)

	jobs := new(mockJobRepo)
	tools := new(mockToolRepo)
	history := new(mockHistoryRepo)
	fetcher := &stubFetcher{doc: docFromHTML(t, runnerPricingHTML)}

	jobs.On("MarkProcessing", mock.Anything, job.ID).Return(nil)
	tools.On("GetPlanByName", mock.Anything, toolID, "Pro").
		Return(nil, apperror.Persistence("get plan", apperror.ErrNotFound))
	tools.On("CreatePlan", mock.Anything, mock.MatchedBy(func(p *model.PricingPlan) bool {
		return p.Name == "Pro" && p.Price.Valid && p.Price.Decimal.Equal(decimal.NewFromInt(25))
	})).Return(nil)
	history.On("InsertLatest", mock.Anything, mock.MatchedBy(func(e *model.PricingHistoryEntry) bool {
		return e.ToolID == toolID && e.PlanName == "Pro" && e.Price.Valid
	})).Return(nil)
	jobs.On("MarkCompleted", mock.Anything, job.ID, mock.Anything).Return(nil)

	runner := NewJobRunner(jobs, tools, history, fetcher, testRunnerConfig(), nil)
	err := runner.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Contains(t, string(job.Result), `"Pro"`)
	jobs.AssertExpectations(t)
	tools.AssertExpectations(t)
	history.AssertExpectations(t)
}

func TestJobRunner_RunUpdatesExistingPlan(t *testing.T) {
	t.Parallel()

	toolID := uuid.New()
	job := pricingJob(&toolID)

	existing := &model.PricingPlan{
		ID:     uuid.New(),
		ToolID: toolID,
		Name:   "Pro",
		Price:  decimal.NewNullDecimal(decimal.NewFromInt(20)),
	}

	jobs := new(mockJobRepo)
	tools := new(mockToolRepo)
	history := new(mockHistoryRepo)
	fetcher := &stubFetcher{doc: docFromHTML(t, runnerPricingHTML)}

	jobs.On("MarkProcessing", mock.Anything, job.ID).Return(nil)
	tools.On("GetPlanByName", mock.Anything, toolID, "Pro").Return(existing, nil)
	tools.On("UpdatePlan", mock.Anything, mock.MatchedBy(func(p *model.PricingPlan) bool {
		return p.ID == existing.ID && p.Price.Decimal.Equal(decimal.NewFromInt(25))
	})).Return(nil)
	history.On("InsertLatest", mock.Anything, mock.Anything).Return(nil)
	jobs.On("MarkCompleted", mock.Anything, job.ID, mock.Anything).Return(nil)

	runner := NewJobRunner(jobs, tools, history, fetcher, testRunnerConfig(), nil)
	err := runner.Run(context.Background(), job)

	require.NoError(t, err)
	tools.AssertExpectations(t)
}

func TestJobRunner_RunMarksFailedOnFetchError(t *testing.T) {
	t.Parallel()

	job := pricingJob(nil)

	jobs := new(mockJobRepo)
	fetcher := &stubFetcher{err: apperror.Fetch("navigate", assert.AnError)}

	jobs.On("MarkProcessing", mock.Anything, job.ID).Return(nil)
	jobs.On("MarkFailed", mock.Anything, job.ID, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "navigate")
	})).Return(nil)

	runner := NewJobRunner(jobs, new(mockToolRepo), new(mockHistoryRepo), fetcher, testRunnerConfig(), nil)
	err := runner.Run(context.Background(), job)

	require.Error(t, err)
	assert.True(t, apperror.IsFetch(err))
	assert.Equal(t, model.JobStatusFailed, job.Status)
	jobs.AssertExpectations(t)
	jobs.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobRunner_RunTimeoutStillReachesFailed(t *testing.T) {
	t.Parallel()

	job := pricingJob(nil)

	jobs := new(mockJobRepo)
	jobs.On("MarkProcessing", mock.Anything, job.ID).Return(nil)
	// The job died of its own deadline, so the FAILED write must arrive on a
	// live context or the row wedges in PROCESSING.
	jobs.On("MarkFailed", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), job.ID, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "deadline")
	})).Return(nil)

	cfg := testRunnerConfig()
	cfg.JobTimeout = 50 * time.Millisecond

	runner := NewJobRunner(jobs, new(mockToolRepo), new(mockHistoryRepo), &hangingFetcher{}, cfg, nil)
	err := runner.Run(context.Background(), job)

	require.Error(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	jobs.AssertExpectations(t)
}

func TestJobRunner_CanceledBatchContextStillReachesFailed(t *testing.T) {
	t.Parallel()

	job := pricingJob(nil)

	jobs := new(mockJobRepo)
	jobs.On("MarkProcessing", mock.Anything, job.ID).Return(nil)
	jobs.On("MarkFailed", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), job.ID, mock.Anything).Return(nil)

	// The batch's own context gets canceled mid-flight, the way an expiring
	// trigger timeout cancels every job still running.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	runner := NewJobRunner(jobs, new(mockToolRepo), new(mockHistoryRepo), &hangingFetcher{}, testRunnerConfig(), nil)
	err := runner.Run(ctx, job)

	require.Error(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	jobs.AssertExpectations(t)
}

func TestJobRunner_RunStopsWhenJobNotRunnable(t *testing.T) {
	t.Parallel()

	job := pricingJob(nil)

	jobs := new(mockJobRepo)
	jobs.On("MarkProcessing", mock.Anything, job.ID).
		Return(apperror.InvalidState(string(model.JobStatusCanceled), string(model.JobStatusProcessing)))

	fetcher := &stubFetcher{doc: docFromHTML(t, runnerPricingHTML)}
	runner := NewJobRunner(jobs, new(mockToolRepo), new(mockHistoryRepo), fetcher, testRunnerConfig(), nil)

	err := runner.Run(context.Background(), job)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	jobs.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobRunner_RunWithoutToolStoresPayloadOnly(t *testing.T) {
	t.Parallel()

	job := pricingJob(nil)

	jobs := new(mockJobRepo)
	tools := new(mockToolRepo)
	history := new(mockHistoryRepo)
	fetcher := &stubFetcher{doc: docFromHTML(t, runnerPricingHTML)}

	jobs.On("MarkProcessing", mock.Anything, job.ID).Return(nil)
	jobs.On("MarkCompleted", mock.Anything, job.ID, mock.Anything).Return(nil)

	runner := NewJobRunner(jobs, tools, history, fetcher, testRunnerConfig(), nil)
	err := runner.Run(context.Background(), job)

	require.NoError(t, err)
	tools.AssertNotCalled(t, "GetPlanByName", mock.Anything, mock.Anything, mock.Anything)
	history.AssertNotCalled(t, "InsertLatest", mock.Anything, mock.Anything)
}

func TestJobRunner_ProcessBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	batch := []model.ScrapingJob{
		*pricingJob(nil),
		*pricingJob(nil),
	}

	jobs := new(mockJobRepo)
	jobs.On("ListPendingRecurring", mock.Anything, 10).Return(batch, nil)
	jobs.On("MarkProcessing", mock.Anything, batch[0].ID).Return(nil)
	jobs.On("MarkProcessing", mock.Anything, batch[1].ID).Return(nil)
	// The stub fetcher fails every fetch, so both jobs end up FAILED but the
	// batch itself still reports the number it attempted.
	jobs.On("MarkFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	fetcher := &stubFetcher{err: apperror.Fetch("navigate", assert.AnError)}
	runner := NewJobRunner(jobs, new(mockToolRepo), new(mockHistoryRepo), fetcher, testRunnerConfig(), nil)

	processed, err := runner.ProcessBatch(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	summary := runner.Metrics().GetSummary()
	assert.Equal(t, 2, summary.LastBatchFailures)
	assert.Equal(t, 0, summary.LastBatchSuccesses)
	jobs.AssertExpectations(t)
}

func TestJobRunner_ProcessBatchEmpty(t *testing.T) {
	t.Parallel()

	jobs := new(mockJobRepo)
	jobs.On("ListPendingRecurring", mock.Anything, 10).Return([]model.ScrapingJob{}, nil)

	runner := NewJobRunner(jobs, new(mockToolRepo), new(mockHistoryRepo), &stubFetcher{}, testRunnerConfig(), nil)

	processed, err := runner.ProcessBatch(context.Background(), 10)

	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestJobRunner_CancelRejectsTerminalJob(t *testing.T) {
	t.Parallel()

	job := pricingJob(nil)
	job.Status = model.JobStatusCompleted

	jobs := new(mockJobRepo)
	jobs.On("GetByID", mock.Anything, job.ID).Return(job, nil)

	runner := NewJobRunner(jobs, new(mockToolRepo), new(mockHistoryRepo), &stubFetcher{}, testRunnerConfig(), nil)

	err := runner.Cancel(context.Background(), job.ID)

	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	jobs.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestJobRunner_CancelPendingJob(t *testing.T) {
	t.Parallel()

	job := pricingJob(nil)

	jobs := new(mockJobRepo)
	jobs.On("GetByID", mock.Anything, job.ID).Return(job, nil)
	jobs.On("Cancel", mock.Anything, job.ID).Return(nil)

	runner := NewJobRunner(jobs, new(mockToolRepo), new(mockHistoryRepo), &stubFetcher{}, testRunnerConfig(), nil)

	require.NoError(t, runner.Cancel(context.Background(), job.ID))
	jobs.AssertExpectations(t)
}

func TestJobRunner_RetryOnlyFailedJobs(t *testing.T) {
	t.Parallel()

	failed := pricingJob(nil)
	failed.Status = model.JobStatusFailed
	pending := pricingJob(nil)

	jobs := new(mockJobRepo)
	jobs.On("GetByID", mock.Anything, failed.ID).Return(failed, nil)
	jobs.On("GetByID", mock.Anything, pending.ID).Return(pending, nil)
	jobs.On("ResetForRetry", mock.Anything, failed.ID).Return(nil)

	runner := NewJobRunner(jobs, new(mockToolRepo), new(mockHistoryRepo), &stubFetcher{}, testRunnerConfig(), nil)

	require.NoError(t, runner.Retry(context.Background(), failed.ID))
	assert.ErrorIs(t, runner.Retry(context.Background(), pending.ID), apperror.ErrInvalidState)
	jobs.AssertExpectations(t)
}
