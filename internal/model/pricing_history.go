package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingHistoryEntry is one observation in the append-only price time series.
// The series key is (tool, plan name, billing period); within a key at most
// one entry carries IsLatest = true. Rows are never deleted; the latest
// marker is demoted when a newer observation lands.
type PricingHistoryEntry struct {
	ID            int64               `db:"id" json:"id"`
	ToolID        uuid.UUID           `db:"tool_id" json:"toolId"`
	PlanName      string              `db:"plan_name" json:"planName"`
	BillingPeriod string              `db:"billing_period" json:"billingPeriod"`
	Price         decimal.NullDecimal `db:"price" json:"price"` // null = custom/contact pricing
	IsLatest      bool                `db:"is_latest" json:"isLatest"`
	RecordedAt    time.Time           `db:"recorded_at" json:"recordedAt"`
}

// Key identifies the time series the entry belongs to.
func (e PricingHistoryEntry) Key() HistoryKey {
	return HistoryKey{ToolID: e.ToolID, PlanName: e.PlanName, BillingPeriod: e.BillingPeriod}
}

// HistoryKey is the (tool, plan, billing period) series key.
type HistoryKey struct {
	ToolID        uuid.UUID
	PlanName      string
	BillingPeriod string
}

// PriceChangeEvent records one detected price delta between the two most
// recent observations of a series. Immutable once created.
type PriceChangeEvent struct {
	ID            int64           `db:"id" json:"id"`
	ToolID        uuid.UUID       `db:"tool_id" json:"toolId"`
	PlanName      string          `db:"plan_name" json:"planName"`
	BillingPeriod string          `db:"billing_period" json:"billingPeriod"`
	OldPrice      decimal.Decimal `db:"old_price" json:"oldPrice"`
	NewPrice      decimal.Decimal `db:"new_price" json:"newPrice"`
	ChangePercent decimal.Decimal `db:"change_percent" json:"changePercent"` // signed, positive = increase
	DetectedAt    time.Time       `db:"detected_at" json:"detectedAt"`
}
