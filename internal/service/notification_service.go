package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pricescope/backend/internal/apperror"
	"github.com/pricescope/backend/internal/email"
	"github.com/pricescope/backend/internal/model"
	"github.com/pricescope/backend/internal/repository"
	"github.com/pricescope/backend/pkg/currency"
)

// digestWindow is how far back the weekly digest reaches
const digestWindow = 7 * 24 * time.Hour

// NotificationService fans detected price changes out to subscribers and
// assembles the weekly digest. Per-recipient failures are logged and
// skipped so one bad address never blocks the rest of the fan-out.
type NotificationService struct {
	users         repository.UserRepository
	tools         repository.ToolRepository
	notifications repository.NotificationRepository
	changes       repository.PriceChangeRepository
	sender        email.Sender
	logger        *slog.Logger
	now           func() time.Time
}

// NewNotificationService creates a NotificationService
func NewNotificationService(
	users repository.UserRepository,
	tools repository.ToolRepository,
	notifications repository.NotificationRepository,
	changes repository.PriceChangeRepository,
	sender email.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		users:         users,
		tools:         tools,
		notifications: notifications,
		changes:       changes,
		sender:        sender,
		logger:        logger,
		now:           time.Now,
	}
}

// FanOut delivers the given events to every subscriber whose preferences
// match: the subscriber must be opted in, track the event's tool, and the
// absolute percent change must meet their threshold (inclusive). Each match
// produces a persisted notification and an alert email.
func (s *NotificationService) FanOut(ctx context.Context, events []model.PriceChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	subscribers, err := s.users.ListAlertSubscribers(ctx)
	if err != nil {
		return apperror.Persistence("list alert subscribers", err)
	}
	if len(subscribers) == 0 {
		return nil
	}

	toolNames := map[uuid.UUID]string{}

	for _, event := range events {
		for _, sub := range subscribers {
			if !sub.Preferences.WantsTool(event.ToolID) {
				continue
			}
			if event.ChangePercent.Abs().LessThan(sub.Preferences.ThresholdPercent) {
				continue
			}

			toolName, err := s.toolName(ctx, toolNames, event.ToolID)
			if err != nil {
				s.logger.Error("tool lookup failed, skipping event for subscriber",
					slog.String("tool_id", event.ToolID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}

			if err := s.notify(ctx, sub, event, toolName); err != nil {
				s.logger.Error("failed to notify subscriber",
					slog.String("user_id", sub.User.ID.String()),
					slog.String("email", sub.User.Email),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return nil
}

// notify persists the in-app notification and sends the alert email for one
// subscriber/event pair
func (s *NotificationService) notify(ctx context.Context, sub model.Subscriber, event model.PriceChangeEvent, toolName string) error {
	content := model.PriceChangeContent{
		ToolName:      toolName,
		PlanName:      event.PlanName,
		BillingPeriod: event.BillingPeriod,
		OldPrice:      decimal.NewNullDecimal(event.OldPrice),
		NewPrice:      decimal.NewNullDecimal(event.NewPrice),
		ChangePercent: event.ChangePercent,
		DetectedAt:    event.DetectedAt,
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return apperror.Notification("marshal notification content", err)
	}

	notification := &model.Notification{
		UserID:  sub.User.ID,
		Type:    model.NotificationTypePriceChange,
		Content: string(raw),
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		return apperror.Persistence("create notification", err)
	}

	subject := fmt.Sprintf("%s changed the price of %s", toolName, event.PlanName)
	return s.sender.Send(sub.User.Email, subject, alertBody(toolName, event))
}

// SendWeeklyDigest aggregates the past week's price changes into one email
// per digest subscriber. Subscribers with tool filters only see changes for
// their tools; alert thresholds do not apply to the digest. Subscribers with
// nothing to report get no email.
func (s *NotificationService) SendWeeklyDigest(ctx context.Context) error {
	since := s.now().Add(-digestWindow)
	events, err := s.changes.ListSince(ctx, since)
	if err != nil {
		return apperror.Persistence("list weekly price changes", err)
	}
	if len(events) == 0 {
		s.logger.Info("weekly digest: no price changes this week")
		return nil
	}

	subscribers, err := s.users.ListDigestSubscribers(ctx)
	if err != nil {
		return apperror.Persistence("list digest subscribers", err)
	}

	toolNames := map[uuid.UUID]string{}

	for _, sub := range subscribers {
		var relevant []model.PriceChangeEvent
		for _, event := range events {
			if sub.Preferences.WantsTool(event.ToolID) {
				relevant = append(relevant, event)
			}
		}
		if len(relevant) == 0 {
			continue
		}

		body, err := s.digestBody(ctx, toolNames, relevant)
		if err != nil {
			s.logger.Error("failed to build digest",
				slog.String("user_id", sub.User.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		subject := fmt.Sprintf("Your weekly pricing digest: %d change(s)", len(relevant))
		if err := s.sender.Send(sub.User.Email, subject, body); err != nil {
			s.logger.Error("failed to send digest",
				slog.String("user_id", sub.User.ID.String()),
				slog.String("email", sub.User.Email),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (s *NotificationService) toolName(ctx context.Context, cache map[uuid.UUID]string, id uuid.UUID) (string, error) {
	if name, ok := cache[id]; ok {
		return name, nil
	}
	tool, err := s.tools.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	cache[id] = tool.Name
	return tool.Name, nil
}

func (s *NotificationService) digestBody(ctx context.Context, cache map[uuid.UUID]string, events []model.PriceChangeEvent) (string, error) {
	var b strings.Builder
	b.WriteString("<h2>Price changes this week</h2><ul>")
	for _, event := range events {
		toolName, err := s.toolName(ctx, cache, event.ToolID)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "<li><strong>%s</strong> &mdash; %s (%s): %s &rarr; %s (%s%%)</li>",
			toolName, event.PlanName, event.BillingPeriod,
			currency.FormatUSD(event.OldPrice), currency.FormatUSD(event.NewPrice),
			currency.SignedPercent(event.ChangePercent),
		)
	}
	b.WriteString("</ul>")
	return b.String(), nil
}

func alertBody(toolName string, event model.PriceChangeEvent) string {
	return fmt.Sprintf(
		"<h2>Price change: %s</h2><p>The <strong>%s</strong> plan (%s) moved from %s to %s, a change of %s%%.</p>",
		toolName, event.PlanName, event.BillingPeriod,
		currency.FormatUSD(event.OldPrice), currency.FormatUSD(event.NewPrice),
		currency.SignedPercent(event.ChangePercent),
	)
}
