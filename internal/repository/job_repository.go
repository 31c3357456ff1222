package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pricescope/backend/internal/apperror"
	"github.com/pricescope/backend/internal/model"
)

// JobRepository defines the interface for scraping job persistence. Status
// writes are guarded by the current status in SQL so an invalid move affects
// zero rows and surfaces as an invalid-state error instead of clobbering a
// terminal job.
type JobRepository interface {
	Create(ctx context.Context, job *model.ScrapingJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ScrapingJob, error)
	ListPendingRecurring(ctx context.Context, limit int) ([]model.ScrapingJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, result []byte) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	Cancel(ctx context.Context, id uuid.UUID) error
	ResetForRetry(ctx context.Context, id uuid.UUID) error
}

type jobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new scraping job repository
func NewJobRepository(db *sqlx.DB) JobRepository {
	return &jobRepository{db: db}
}

// Create inserts a new job in PENDING state
func (r *jobRepository) Create(ctx context.Context, job *model.ScrapingJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = model.JobStatusPending

	query := `
		INSERT INTO scraping_jobs (id, url, type, schedule, status, tool_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		job.ID, job.URL, job.Type, job.Schedule, job.Status, job.ToolID, job.CreatedBy,
	).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetByID returns a job by ID
func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ScrapingJob, error) {
	var job model.ScrapingJob
	err := r.db.GetContext(ctx, &job, `
		SELECT * FROM scraping_jobs WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get job %s: %w", id, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// ListPendingRecurring returns up to limit PENDING jobs whose schedule is not
// ONCE, oldest first. This is the batch processor's work queue.
func (r *jobRepository) ListPendingRecurring(ctx context.Context, limit int) ([]model.ScrapingJob, error) {
	var jobs []model.ScrapingJob
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM scraping_jobs
		WHERE status = $1 AND schedule != $2
		ORDER BY created_at ASC
		LIMIT $3
	`, model.JobStatusPending, model.ScheduleOnce, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending recurring jobs: %w", err)
	}
	return jobs, nil
}

// MarkProcessing transitions PENDING -> PROCESSING and sets started_at
func (r *jobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scraping_jobs SET
			status = $1,
			started_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = $3
	`, model.JobStatusProcessing, id, model.JobStatusPending)
	if err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	return r.checkTransition(result, string(model.JobStatusProcessing))
}

// MarkCompleted transitions PROCESSING -> COMPLETED, stores the extracted
// payload and sets completed_at
func (r *jobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, payload []byte) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scraping_jobs SET
			status = $1,
			result = $2,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND status = $4
	`, model.JobStatusCompleted, payload, id, model.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return r.checkTransition(result, string(model.JobStatusCompleted))
}

// MarkFailed transitions PROCESSING -> FAILED with the captured error message
func (r *jobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scraping_jobs SET
			status = $1,
			error = $2,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND status = $4
	`, model.JobStatusFailed, message, id, model.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return r.checkTransition(result, string(model.JobStatusFailed))
}

// Cancel transitions a PENDING or PROCESSING job to CANCELED. Operator action
// only; terminal jobs are left untouched.
func (r *jobRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scraping_jobs SET
			status = $1,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status IN ($3, $4)
	`, model.JobStatusCanceled, id, model.JobStatusPending, model.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return r.checkTransition(result, string(model.JobStatusCanceled))
}

// ResetForRetry moves a FAILED job back to PENDING with cleared attempt
// fields, conceptually starting a fresh attempt.
func (r *jobRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scraping_jobs SET
			status = $1,
			started_at = NULL,
			completed_at = NULL,
			error = NULL,
			result = NULL
		WHERE id = $2 AND status = $3
	`, model.JobStatusPending, id, model.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("reset job for retry: %w", err)
	}
	return r.checkTransition(result, string(model.JobStatusPending))
}

// checkTransition converts a zero-row guarded update into an invalid-state error
func (r *jobRepository) checkTransition(result sql.Result, to string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return &apperror.PipelineError{
			Kind:      apperror.ErrInvalidState,
			Operation: fmt.Sprintf("job cannot enter %s from its current status", to),
		}
	}
	return nil
}
