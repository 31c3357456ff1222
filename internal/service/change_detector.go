package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pricescope/backend/internal/apperror"
	"github.com/pricescope/backend/internal/model"
	"github.com/pricescope/backend/internal/repository"
)

// freePlanChangeCap stands in for the undefined percent change when a free
// plan (price 0) turns paid. Division by the old price is impossible, but
// free-to-paid is exactly the kind of change subscribers care about, so the
// event is emitted with this sentinel instead of being dropped.
var freePlanChangeCap = decimal.NewFromInt(1000)

var hundred = decimal.NewFromInt(100)

// ChangeDetector compares the latest pricing observation of every series
// against the one before it and persists an event per changed price.
type ChangeDetector struct {
	history repository.PricingHistoryRepository
	changes repository.PriceChangeRepository
	logger  *slog.Logger
}

// NewChangeDetector creates a ChangeDetector
func NewChangeDetector(
	history repository.PricingHistoryRepository,
	changes repository.PriceChangeRepository,
	logger *slog.Logger,
) *ChangeDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeDetector{history: history, changes: changes, logger: logger}
}

// Detect runs one detection pass and returns the events it recorded.
// Series with no prior observation, unchanged prices, or a null price on
// either side produce no event. Null prices mean custom/contact pricing;
// there is no number to diff.
func (d *ChangeDetector) Detect(ctx context.Context) ([]model.PriceChangeEvent, error) {
	latest, err := d.history.ListLatest(ctx)
	if err != nil {
		return nil, apperror.Persistence("list latest prices", err)
	}
	previous, err := d.history.ListPrevious(ctx)
	if err != nil {
		return nil, apperror.Persistence("list previous prices", err)
	}

	prior := make(map[model.HistoryKey]model.PricingHistoryEntry, len(previous))
	for _, entry := range previous {
		prior[entry.Key()] = entry
	}

	detectedAt := time.Now().UTC()

	var events []model.PriceChangeEvent
	for _, current := range latest {
		old, ok := prior[current.Key()]
		if !ok {
			continue // first observation, nothing to compare
		}
		if !current.Price.Valid || !old.Price.Valid {
			continue
		}
		if current.Price.Decimal.Equal(old.Price.Decimal) {
			continue
		}

		// The daily pass sees the same (latest, previous) pair until the next
		// scrape demotes it; emit each delta once.
		reported, err := d.changes.HasEventSince(ctx, current.Key(), current.RecordedAt)
		if err != nil {
			return events, apperror.Persistence("check reported price change", err)
		}
		if reported {
			continue
		}

		event := model.PriceChangeEvent{
			ToolID:        current.ToolID,
			PlanName:      current.PlanName,
			BillingPeriod: current.BillingPeriod,
			OldPrice:      old.Price.Decimal,
			NewPrice:      current.Price.Decimal,
			ChangePercent: changePercent(old.Price.Decimal, current.Price.Decimal),
			DetectedAt:    detectedAt,
		}
		if err := d.changes.Create(ctx, &event); err != nil {
			return events, apperror.Persistence("record price change", err)
		}

		d.logger.Info("price change detected",
			slog.String("tool_id", event.ToolID.String()),
			slog.String("plan", event.PlanName),
			slog.String("old", event.OldPrice.String()),
			slog.String("new", event.NewPrice.String()),
			slog.String("change_percent", event.ChangePercent.String()),
		)
		events = append(events, event)
	}

	return events, nil
}

// changePercent computes the signed relative change, rounded to two places.
func changePercent(old, new decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		if new.IsPositive() {
			return freePlanChangeCap
		}
		return freePlanChangeCap.Neg()
	}
	return new.Sub(old).Div(old).Mul(hundred).Round(2)
}
