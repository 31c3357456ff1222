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

// ToolRepository defines the read/write surface the pipeline needs from the
// tool and pricing plan domain. The wider CRUD API owns these tables; the
// pipeline only lists scrape targets and reconciles extracted plans.
type ToolRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Tool, error)
	ListWithWebsite(ctx context.Context) ([]model.Tool, error)
	GetPlanByName(ctx context.Context, toolID uuid.UUID, name string) (*model.PricingPlan, error)
	CreatePlan(ctx context.Context, plan *model.PricingPlan) error
	UpdatePlan(ctx context.Context, plan *model.PricingPlan) error
}

type toolRepository struct {
	db *sqlx.DB
}

// NewToolRepository creates a new tool repository
func NewToolRepository(db *sqlx.DB) ToolRepository {
	return &toolRepository{db: db}
}

// GetByID returns a tool by ID
func (r *toolRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Tool, error) {
	var tool model.Tool
	err := r.db.GetContext(ctx, &tool, `
		SELECT * FROM tools WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get tool %s: %w", id, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("get tool: %w", err)
	}
	return &tool, nil
}

// ListWithWebsite returns every tool with a non-empty website, the targets
// of the weekly refresh trigger
func (r *toolRepository) ListWithWebsite(ctx context.Context) ([]model.Tool, error) {
	var tools []model.Tool
	err := r.db.SelectContext(ctx, &tools, `
		SELECT * FROM tools WHERE website != '' ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tools with website: %w", err)
	}
	return tools, nil
}

// GetPlanByName returns a tool's pricing plan matched case-insensitively by
// name, or a not-found error
func (r *toolRepository) GetPlanByName(ctx context.Context, toolID uuid.UUID, name string) (*model.PricingPlan, error) {
	var plan model.PricingPlan
	err := r.db.GetContext(ctx, &plan, `
		SELECT * FROM pricing_plans
		WHERE tool_id = $1 AND LOWER(name) = LOWER($2)
	`, toolID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get plan %q: %w", name, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("get plan by name: %w", err)
	}
	return &plan, nil
}

// CreatePlan inserts a pricing plan discovered by the extractor
func (r *toolRepository) CreatePlan(ctx context.Context, plan *model.PricingPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO pricing_plans (id, tool_id, name, price, billing_period, is_custom_pricing, features, limitations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, plan.ID, plan.ToolID, plan.Name, plan.Price, plan.BillingPeriod,
		plan.IsCustomPricing, plan.Features, plan.Limitations,
	).Scan(&plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// UpdatePlan refreshes the price, features and limitations of an existing plan
func (r *toolRepository) UpdatePlan(ctx context.Context, plan *model.PricingPlan) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pricing_plans SET
			price = $1,
			is_custom_pricing = $2,
			features = $3,
			limitations = $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
	`, plan.Price, plan.IsCustomPricing, plan.Features, plan.Limitations, plan.ID)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}
