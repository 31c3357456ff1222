package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pricescope/backend/internal/model"
)

// UserRepository exposes the subscriber reads the notification fan-out needs.
// Preference mutation belongs to the CRUD API and is out of scope here.
type UserRepository interface {
	ListAlertSubscribers(ctx context.Context) ([]model.Subscriber, error)
	ListDigestSubscribers(ctx context.Context) ([]model.Subscriber, error)
}

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

type subscriberRow struct {
	model.User
	Subscribed       bool            `db:"subscribed"`
	ThresholdPercent decimal.Decimal `db:"threshold_percent"`
	WeeklyDigest     bool            `db:"weekly_digest"`
}

// ListAlertSubscribers returns users with immediate alerts enabled, together
// with their threshold and tool subscription set
func (r *userRepository) ListAlertSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	return r.listSubscribers(ctx, `
		SELECT u.id, u.email, u.name, u.created_at, u.updated_at,
		       p.subscribed, COALESCE(p.threshold_percent, $1) AS threshold_percent, p.weekly_digest
		FROM users u
		JOIN alert_preferences p ON p.user_id = u.id
		WHERE p.subscribed = TRUE
		ORDER BY u.created_at
	`)
}

// ListDigestSubscribers returns users with the weekly digest enabled
func (r *userRepository) ListDigestSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	return r.listSubscribers(ctx, `
		SELECT u.id, u.email, u.name, u.created_at, u.updated_at,
		       p.subscribed, COALESCE(p.threshold_percent, $1) AS threshold_percent, p.weekly_digest
		FROM users u
		JOIN alert_preferences p ON p.user_id = u.id
		WHERE p.weekly_digest = TRUE
		ORDER BY u.created_at
	`)
}

func (r *userRepository) listSubscribers(ctx context.Context, query string) ([]model.Subscriber, error) {
	var rows []subscriberRow
	if err := r.db.SelectContext(ctx, &rows, query, model.DefaultThresholdPercent); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	toolSets, err := r.toolSubscriptionSets(ctx)
	if err != nil {
		return nil, err
	}

	subscribers := make([]model.Subscriber, 0, len(rows))
	for _, row := range rows {
		subscribers = append(subscribers, model.Subscriber{
			User: row.User,
			Preferences: model.AlertPreferences{
				UserID:           row.User.ID,
				Subscribed:       row.Subscribed,
				ThresholdPercent: row.ThresholdPercent,
				WeeklyDigest:     row.WeeklyDigest,
				ToolIDs:          toolSets[row.User.ID],
			},
		})
	}
	return subscribers, nil
}

// toolSubscriptionSets loads every user's specific tool subscriptions in one
// query. Users absent from the map follow all tools.
func (r *userRepository) toolSubscriptionSets(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	var rows []struct {
		UserID uuid.UUID `db:"user_id"`
		ToolID uuid.UUID `db:"tool_id"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT user_id, tool_id FROM alert_tool_subscriptions
	`)
	if err != nil {
		return nil, fmt.Errorf("list tool subscriptions: %w", err)
	}

	sets := make(map[uuid.UUID][]uuid.UUID, len(rows))
	for _, row := range rows {
		sets[row.UserID] = append(sets[row.UserID], row.ToolID)
	}
	return sets, nil
}
