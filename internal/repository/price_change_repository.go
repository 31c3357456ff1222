package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pricescope/backend/internal/model"
)

// PriceChangeRepository defines the interface for detected price change events
type PriceChangeRepository interface {
	Create(ctx context.Context, event *model.PriceChangeEvent) error
	ListSince(ctx context.Context, since time.Time) ([]model.PriceChangeEvent, error)
	HasEventSince(ctx context.Context, key model.HistoryKey, since time.Time) (bool, error)
}

type priceChangeRepository struct {
	db *sqlx.DB
}

// NewPriceChangeRepository creates a new price change event repository
func NewPriceChangeRepository(db *sqlx.DB) PriceChangeRepository {
	return &priceChangeRepository{db: db}
}

// Create persists a detected change event. Events are immutable.
func (r *priceChangeRepository) Create(ctx context.Context, event *model.PriceChangeEvent) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO price_change_events (tool_id, plan_name, billing_period, old_price, new_price, change_percent, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, event.ToolID, event.PlanName, event.BillingPeriod,
		event.OldPrice, event.NewPrice, event.ChangePercent, event.DetectedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("create price change event: %w", err)
	}
	return nil
}

// HasEventSince reports whether the series already has an event detected at
// or after the given instant. The change detector uses it to emit each delta
// once instead of re-reporting it on every pass until the next scrape.
func (r *priceChangeRepository) HasEventSince(ctx context.Context, key model.HistoryKey, since time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM price_change_events
			WHERE tool_id = $1 AND plan_name = $2 AND billing_period = $3 AND detected_at >= $4
		)
	`, key.ToolID, key.PlanName, key.BillingPeriod, since)
	if err != nil {
		return false, fmt.Errorf("check existing price change event: %w", err)
	}
	return exists, nil
}

// ListSince returns events detected at or after the given instant, oldest
// first. Used by the weekly digest window query.
func (r *priceChangeRepository) ListSince(ctx context.Context, since time.Time) ([]model.PriceChangeEvent, error) {
	var events []model.PriceChangeEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM price_change_events
		WHERE detected_at >= $1
		ORDER BY detected_at ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list price changes since %s: %w", since.Format(time.RFC3339), err)
	}
	return events, nil
}
