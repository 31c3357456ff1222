package scraper

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pricescope/backend/internal/model"
)

// ExtractedPlan is one pricing tier lifted from a page
type ExtractedPlan struct {
	Name            string
	Price           decimal.NullDecimal // null = custom/contact pricing
	IsCustomPricing bool
	BillingPeriod   string // monthly unless the price text says otherwise
	Features        []string
	Limitations     []string
}

// Result is the tagged extraction result, keyed by the job type that
// produced it. Exactly one variant is populated.
type Result struct {
	Pricing      *PricingResult
	Features     *FeaturesResult
	Integrations *IntegrationsResult
}

// PricingResult holds the plans extracted from a pricing page
type PricingResult struct {
	Plans []ExtractedPlan
}

// FeaturesResult holds a flat feature list extracted from a features page
type FeaturesResult struct {
	Features []string
}

// IntegrationsResult holds integration names extracted from an integrations page
type IntegrationsResult struct {
	Integrations []string
}

// planPayload is the wire shape of one plan inside a PRICING job result
type planPayload struct {
	Price           *decimal.Decimal `json:"price"`
	IsCustomPricing bool             `json:"isCustomPricing"`
	Features        []string         `json:"features"`
}

// Payload serializes the result into the job's stored result field:
//
//	{"<planName>": {"price": ..., "isCustomPricing": ..., "features": [...]}, ...}
//
// for pricing jobs, {"features": [...]} / {"integrations": [...]} otherwise.
func (r Result) Payload() ([]byte, error) {
	switch {
	case r.Pricing != nil:
		payload := make(map[string]planPayload, len(r.Pricing.Plans))
		for _, plan := range r.Pricing.Plans {
			var price *decimal.Decimal
			if plan.Price.Valid {
				p := plan.Price.Decimal
				price = &p
			}
			features := plan.Features
			if features == nil {
				features = []string{}
			}
			payload[plan.Name] = planPayload{
				Price:           price,
				IsCustomPricing: plan.IsCustomPricing,
				Features:        features,
			}
		}
		return json.Marshal(payload)
	case r.Features != nil:
		return json.Marshal(map[string][]string{"features": emptyIfNil(r.Features.Features)})
	case r.Integrations != nil:
		return json.Marshal(map[string][]string{"integrations": emptyIfNil(r.Integrations.Integrations)})
	default:
		return nil, fmt.Errorf("empty extraction result")
	}
}

// Type returns the job type the populated variant belongs to
func (r Result) Type() model.JobType {
	switch {
	case r.Features != nil:
		return model.JobTypeFeatures
	case r.Integrations != nil:
		return model.JobTypeIntegrations
	default:
		return model.JobTypePricing
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
