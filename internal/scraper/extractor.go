package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/pricescope/backend/internal/model"
)

// planContainerSelectors is the cascade used to locate pricing plan cards.
// The first selector with any matches wins; markup out in the wild is too
// inconsistent for anything stricter.
var planContainerSelectors = []string{
	"[class*='pricing'] [class*='card']",
	"[class*='pricing'] [class*='plan']",
	"[class*='pricing'] [class*='tier']",
	"[class*='pricing-card']",
	"[class*='plan-card']",
	"[class*='price-card']",
	"[class*='pricing-column']",
	"[class*='tier']",
	"[class*='plan']",
}

var planNameSelectors = []string{
	"[class*='plan-name']",
	"[class*='tier-name']",
	"[class*='name']",
	"[class*='title']",
	"h1", "h2", "h3", "h4",
}

var priceSelectors = []string{
	"[class*='price']",
	"[class*='amount']",
	"[class*='cost']",
}

var (
	// Price text matching these phrases is custom pricing, not a parse failure
	customPricingPattern = regexp.MustCompile(`(?i)contact|custom|enterprise|quote|talk to|get in touch`)
	priceTokenPattern    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	annualPattern        = regexp.MustCompile(`(?i)/\s*(yr|year)|annual|yearly|per year`)
)

// Billing period labels for the history series key
const (
	BillingMonthly = "monthly"
	BillingAnnual  = "annual"
)

// Extractor applies heuristic rules to a rendered page and produces
// structured records per job type. Missing markup degrades to empty
// collections; extraction itself never fails, only fetching can.
type Extractor struct{}

// NewExtractor creates an Extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract runs the heuristics matching the job type
func (e *Extractor) Extract(doc *goquery.Document, jobType model.JobType) Result {
	switch jobType {
	case model.JobTypeFeatures:
		return Result{Features: &FeaturesResult{Features: e.extractFeatureList(doc.Selection)}}
	case model.JobTypeIntegrations:
		return Result{Integrations: &IntegrationsResult{Integrations: e.extractIntegrations(doc)}}
	default:
		return Result{Pricing: &PricingResult{Plans: e.extractPlans(doc)}}
	}
}

// extractPlans locates plan containers via the selector cascade and lifts a
// record from each
func (e *Extractor) extractPlans(doc *goquery.Document) []ExtractedPlan {
	containers := e.findContainers(doc)

	plans := make([]ExtractedPlan, 0, containers.Length())
	containers.Each(func(i int, card *goquery.Selection) {
		plan := ExtractedPlan{
			Name:          e.extractPlanName(card, i),
			BillingPeriod: BillingMonthly,
			Features:      e.extractFeatureList(card),
			Limitations:   e.extractLimitations(card),
		}
		var priceText string
		plan.Price, plan.IsCustomPricing, priceText = e.extractPrice(card)
		if annualPattern.MatchString(priceText) {
			plan.BillingPeriod = BillingAnnual
		}
		plans = append(plans, plan)
	})
	return plans
}

func (e *Extractor) findContainers(doc *goquery.Document) *goquery.Selection {
	for _, selector := range planContainerSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			return sel
		}
	}
	return doc.Find("__none__")
}

// extractPlanName finds the tier name in a card, falling back to a
// positional default
func (e *Extractor) extractPlanName(card *goquery.Selection, index int) string {
	for _, selector := range planNameSelectors {
		if el := card.Find(selector).First(); el.Length() > 0 {
			if name := strings.TrimSpace(el.Text()); name != "" {
				return name
			}
		}
	}
	return fmt.Sprintf("Plan %d", index+1)
}

// extractPrice finds the price element and parses the first numeric token.
// Contact/custom/enterprise/quote wording means custom pricing, not a
// parse failure. The raw price text is returned for billing period sniffing.
func (e *Extractor) extractPrice(card *goquery.Selection) (decimal.NullDecimal, bool, string) {
	var text string
	for _, selector := range priceSelectors {
		if el := card.Find(selector).First(); el.Length() > 0 {
			text = strings.TrimSpace(el.Text())
			if text != "" {
				break
			}
		}
	}

	if text == "" {
		return decimal.NullDecimal{}, false, text
	}

	if customPricingPattern.MatchString(text) {
		return decimal.NullDecimal{}, true, text
	}

	token := priceTokenPattern.FindString(strings.ReplaceAll(text, ",", ""))
	if token == "" {
		return decimal.NullDecimal{}, false, text
	}

	price, err := decimal.NewFromString(token)
	if err != nil {
		return decimal.NullDecimal{}, false, text
	}
	return decimal.NewNullDecimal(price), false, text
}

// extractFeatureList collects list items from feature sections, or any list
// items in scope when no dedicated section exists
func (e *Extractor) extractFeatureList(scope *goquery.Selection) []string {
	items := scope.Find("[class*='feature'] li")
	if items.Length() == 0 {
		items = scope.Find("ul li")
	}
	return collectText(items)
}

func (e *Extractor) extractLimitations(card *goquery.Selection) []string {
	return collectText(card.Find("[class*='limit'] li"))
}

func (e *Extractor) extractIntegrations(doc *goquery.Document) []string {
	items := doc.Find("[class*='integration'] li")
	if items.Length() == 0 {
		items = doc.Find("[class*='integration'] [class*='name']")
	}
	return collectText(items)
}

func collectText(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, el *goquery.Selection) {
		if text := strings.TrimSpace(el.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}
