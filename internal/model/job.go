package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType determines what the extractor looks for on the fetched page.
type JobType string

const (
	JobTypePricing      JobType = "PRICING"
	JobTypeFeatures     JobType = "FEATURES"
	JobTypeIntegrations JobType = "INTEGRATIONS"
)

// JobSchedule is the recurrence class of a scraping job.
type JobSchedule string

const (
	ScheduleOnce    JobSchedule = "ONCE"
	ScheduleDaily   JobSchedule = "DAILY"
	ScheduleWeekly  JobSchedule = "WEEKLY"
	ScheduleMonthly JobSchedule = "MONTHLY"
)

// JobStatus values mirror the scraping_job_status enum in PostgreSQL.
//
// Valid status graph:
//
//	PENDING ──► PROCESSING ──► COMPLETED
//	    │            │     └──► FAILED
//	    └────────────┴────────► CANCELED
//
// COMPLETED, FAILED and CANCELED are terminal states. Retrying a failed job
// is a separate operation that resets the record to PENDING.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCanceled   JobStatus = "CANCELED"
)

// validTransitions lists every allowed (from -> to) pair.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCanceled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCanceled},
	// COMPLETED, FAILED and CANCELED are terminal, no outgoing transitions
}

// ParseJobStatus converts a raw string to a JobStatus, returning an error
// for unknown values.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	switch st {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// CanTransition returns true when moving from -> to is permitted by the
// state machine.
func CanTransition(from, to JobStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state, no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses with no outgoing transitions.
func (s JobStatus) IsTerminal() bool {
	_, ok := validTransitions[s]
	return !ok
}

// ScrapingJob is the durable record of one scraping attempt. Jobs are never
// deleted; the row is the audit trail of the attempt.
type ScrapingJob struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	URL         string      `db:"url" json:"url"`
	Type        JobType     `db:"type" json:"type"`
	Schedule    JobSchedule `db:"schedule" json:"schedule"`
	Status      JobStatus   `db:"status" json:"status"`
	ToolID      *uuid.UUID  `db:"tool_id" json:"toolId,omitempty"`
	CreatedBy   *uuid.UUID  `db:"created_by" json:"createdBy,omitempty"`
	Result      []byte      `db:"result" json:"result,omitempty"` // raw extracted payload, JSONB
	Error       *string     `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	StartedAt   *time.Time  `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time  `db:"completed_at" json:"completedAt,omitempty"`
}

// IsRecurring reports whether the batch processor may pick the job up again.
func (j *ScrapingJob) IsRecurring() bool {
	return j.Schedule != ScheduleOnce
}
