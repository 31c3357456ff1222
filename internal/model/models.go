package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Tool represents a SaaS product tracked by the platform
type Tool struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	Website   string    `db:"website" json:"website"`
	Category  string    `db:"category" json:"category"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// PricingPlan is the current pricing tier record for a tool,
// reconciled after each successful scrape
type PricingPlan struct {
	ID              uuid.UUID           `db:"id" json:"id"`
	ToolID          uuid.UUID           `db:"tool_id" json:"toolId"`
	Name            string              `db:"name" json:"name"`
	Price           decimal.NullDecimal `db:"price" json:"price"` // null = custom/contact pricing
	BillingPeriod   string              `db:"billing_period" json:"billingPeriod"` // monthly, annual
	IsCustomPricing bool                `db:"is_custom_pricing" json:"isCustomPricing"`
	Features        pq.StringArray      `db:"features" json:"features"`
	Limitations     pq.StringArray      `db:"limitations" json:"limitations"`
	CreatedAt       time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updatedAt"`
}

// DefaultThresholdPercent is the alert threshold applied when a user has not
// chosen one. Mirrors the column default on alert_preferences.
var DefaultThresholdPercent = decimal.NewFromInt(5)

// AlertPreferences holds a user's price alert settings. An empty ToolIDs set
// means the user is subscribed to changes for every tool.
type AlertPreferences struct {
	UserID           uuid.UUID       `db:"user_id" json:"userId"`
	Subscribed       bool            `db:"subscribed" json:"subscribed"`
	ThresholdPercent decimal.Decimal `db:"threshold_percent" json:"thresholdPercent"`
	WeeklyDigest     bool            `db:"weekly_digest" json:"weeklyDigest"`
	ToolIDs          []uuid.UUID     `db:"-" json:"toolIds"`
}

// WantsTool reports whether a change for the given tool is relevant to the user.
func (p AlertPreferences) WantsTool(toolID uuid.UUID) bool {
	if len(p.ToolIDs) == 0 {
		return true
	}
	for _, id := range p.ToolIDs {
		if id == toolID {
			return true
		}
	}
	return false
}

// Subscriber pairs a user with their alert preferences for fan-out.
type Subscriber struct {
	User        User
	Preferences AlertPreferences
}

type NotificationType string

const (
	NotificationTypePriceChange NotificationType = "PRICE_CHANGE"
)

// Notification is a persisted in-app notification
type Notification struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	UserID    uuid.UUID        `db:"user_id" json:"userId"`
	Type      NotificationType `db:"type" json:"type"`
	Content   string           `db:"content" json:"content"` // structured JSON payload
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// PriceChangeContent is the structured payload stored in a price change notification
type PriceChangeContent struct {
	ToolName      string              `json:"toolName"`
	PlanName      string              `json:"planName"`
	BillingPeriod string              `json:"billingPeriod"`
	OldPrice      decimal.NullDecimal `json:"oldPrice"`
	NewPrice      decimal.NullDecimal `json:"newPrice"`
	ChangePercent decimal.Decimal     `json:"changePercent"`
	DetectedAt    time.Time           `json:"detectedAt"`
}
