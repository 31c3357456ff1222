package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pricescope/backend/internal/model"
)

// PricingHistoryRepository defines the interface for the append-only price
// time series. InsertLatest must keep the invariant that a series key has at
// most one entry with is_latest = true.
type PricingHistoryRepository interface {
	InsertLatest(ctx context.Context, entry *model.PricingHistoryEntry) error
	ListLatest(ctx context.Context) ([]model.PricingHistoryEntry, error)
	ListPrevious(ctx context.Context) ([]model.PricingHistoryEntry, error)
	ListByKey(ctx context.Context, key model.HistoryKey, limit int) ([]model.PricingHistoryEntry, error)
}

type pricingHistoryRepository struct {
	db *sqlx.DB
}

// NewPricingHistoryRepository creates a new pricing history repository
func NewPricingHistoryRepository(db *sqlx.DB) PricingHistoryRepository {
	return &pricingHistoryRepository{db: db}
}

// InsertLatest appends a new observation for the entry's series key and
// demotes the prior latest entry in the same transaction. Rows are never
// deleted; only the marker moves.
func (r *pricingHistoryRepository) InsertLatest(ctx context.Context, entry *model.PricingHistoryEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE pricing_history SET is_latest = FALSE
		WHERE tool_id = $1 AND plan_name = $2 AND billing_period = $3 AND is_latest = TRUE
	`, entry.ToolID, entry.PlanName, entry.BillingPeriod)
	if err != nil {
		return fmt.Errorf("demote latest entry: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO pricing_history (tool_id, plan_name, billing_period, price, is_latest, recorded_at)
		VALUES ($1, $2, $3, $4, TRUE, CURRENT_TIMESTAMP)
		RETURNING id, recorded_at
	`, entry.ToolID, entry.PlanName, entry.BillingPeriod, entry.Price).Scan(&entry.ID, &entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	entry.IsLatest = true

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

// ListLatest returns every entry currently marked latest
func (r *pricingHistoryRepository) ListLatest(ctx context.Context) ([]model.PricingHistoryEntry, error) {
	var entries []model.PricingHistoryEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM pricing_history
		WHERE is_latest = TRUE
		ORDER BY tool_id, plan_name, billing_period
	`)
	if err != nil {
		return nil, fmt.Errorf("list latest entries: %w", err)
	}
	return entries, nil
}

// ListPrevious returns, per series key, the most recent entry that is not
// marked latest, the baseline each latest entry is diffed against.
func (r *pricingHistoryRepository) ListPrevious(ctx context.Context) ([]model.PricingHistoryEntry, error) {
	var entries []model.PricingHistoryEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT DISTINCT ON (tool_id, plan_name, billing_period) *
		FROM pricing_history
		WHERE is_latest = FALSE
		ORDER BY tool_id, plan_name, billing_period, recorded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list previous entries: %w", err)
	}
	return entries, nil
}

// ListByKey returns the newest entries for one series, newest first
func (r *pricingHistoryRepository) ListByKey(ctx context.Context, key model.HistoryKey, limit int) ([]model.PricingHistoryEntry, error) {
	var entries []model.PricingHistoryEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM pricing_history
		WHERE tool_id = $1 AND plan_name = $2 AND billing_period = $3
		ORDER BY recorded_at DESC
		LIMIT $4
	`, key.ToolID, key.PlanName, key.BillingPeriod, limit)
	if err != nil {
		return nil, fmt.Errorf("list history by key: %w", err)
	}
	return entries, nil
}
