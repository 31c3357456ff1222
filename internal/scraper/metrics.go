package scraper

import (
	"sync"
	"time"
)

// JobMetrics holds metrics for one processed scraping job
type JobMetrics struct {
	JobID          string
	StartedAt      time.Time
	CompletedAt    time.Time
	PlansExtracted int
	Success        bool
	ErrorMessage   string
	Duration       time.Duration
}

// MetricsCollector aggregates per-job scrape metrics in process. The batch
// processor logs a summary after each batch; nothing is persisted here.
type MetricsCollector struct {
	mu            sync.RWMutex
	currentBatch  map[string]*JobMetrics
	lastBatch     map[string]*JobMetrics
	totalBatches  int
	totalSucceeded int
	totalFailed   int
	lastBatchTime time.Time
}

// NewMetricsCollector creates a new MetricsCollector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		currentBatch: make(map[string]*JobMetrics),
		lastBatch:    make(map[string]*JobMetrics),
	}
}

// StartJob records the start of a job run
func (mc *MetricsCollector) StartJob(jobID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.currentBatch[jobID] = &JobMetrics{
		JobID:     jobID,
		StartedAt: time.Now(),
	}
}

// RecordSuccess records a completed job
func (mc *MetricsCollector) RecordSuccess(jobID string, plansExtracted int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if m, ok := mc.currentBatch[jobID]; ok {
		m.CompletedAt = time.Now()
		m.Duration = m.CompletedAt.Sub(m.StartedAt)
		m.PlansExtracted = plansExtracted
		m.Success = true
	}
}

// RecordFailure records a failed job
func (mc *MetricsCollector) RecordFailure(jobID string, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if m, ok := mc.currentBatch[jobID]; ok {
		m.CompletedAt = time.Now()
		m.Duration = m.CompletedAt.Sub(m.StartedAt)
		m.Success = false
		if err != nil {
			m.ErrorMessage = err.Error()
		}
	}
}

// FinishBatch closes out the current batch and rolls it into the totals
func (mc *MetricsCollector) FinishBatch() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, m := range mc.currentBatch {
		if m.Success {
			mc.totalSucceeded++
		} else {
			mc.totalFailed++
		}
	}

	mc.totalBatches++
	mc.lastBatchTime = time.Now()
	mc.lastBatch = mc.currentBatch
	mc.currentBatch = make(map[string]*JobMetrics)
}

// Summary provides an overview of job processing since startup
type Summary struct {
	TotalBatches      int
	TotalSucceeded    int
	TotalFailed       int
	LastBatchTime     time.Time
	LastBatchSuccesses int
	LastBatchFailures int
	LastBatchDuration time.Duration
}

// GetSummary returns aggregate counters plus the last batch's outcome
func (mc *MetricsCollector) GetSummary() Summary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var successes, failures int
	var duration time.Duration
	for _, m := range mc.lastBatch {
		if m.Success {
			successes++
		} else {
			failures++
		}
		duration += m.Duration
	}

	return Summary{
		TotalBatches:       mc.totalBatches,
		TotalSucceeded:     mc.totalSucceeded,
		TotalFailed:        mc.totalFailed,
		LastBatchTime:      mc.lastBatchTime,
		LastBatchSuccesses: successes,
		LastBatchFailures:  failures,
		LastBatchDuration:  duration,
	}
}

// GetLastBatch returns a copy of the last batch's per-job metrics
func (mc *MetricsCollector) GetLastBatch() map[string]*JobMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make(map[string]*JobMetrics, len(mc.lastBatch))
	for k, v := range mc.lastBatch {
		copied := *v
		result[k] = &copied
	}
	return result
}
