// Package email delivers transactional mail through an HTTP email API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pricescope/backend/internal/apperror"
)

// Sender defines the interface for sending emails
type Sender interface {
	Send(to, subject, htmlBody string) error
}

// APISender posts messages to a transactional email API (Resend-style JSON
// endpoint with a bearer key)
type APISender struct {
	client *http.Client
	url    string
	apiKey string
	from   string
	retry  RetryConfig
	logger *slog.Logger
}

// NewAPISender creates an APISender
func NewAPISender(url, apiKey, from string, logger *slog.Logger) *APISender {
	if logger == nil {
		logger = slog.Default()
	}
	return &APISender{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    url,
		apiKey: apiKey,
		from:   from,
		retry:  DefaultRetryConfig(),
		logger: logger,
	}
}

type apiMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers one message, retrying transient API failures with backoff
func (s *APISender) Send(to, subject, htmlBody string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	body, err := json.Marshal(apiMessage{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return apperror.Notification("encode message", err)
	}

	err = withRetry(ctx, s.retry, s.logger, func() error {
		return s.post(ctx, body)
	})
	if err != nil {
		return apperror.Notification("send email to "+to, err)
	}
	return nil
}

func (s *APISender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, detail)
	}
	return fmt.Errorf("email API rejected message: status %d: %s", resp.StatusCode, detail)
}

// LogSender logs messages instead of delivering them; used in development
// and when no API key is configured
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message and reports success
func (s *LogSender) Send(to, subject, htmlBody string) error {
	s.logger.Info("email suppressed (log sender)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("body_bytes", len(htmlBody)),
	)
	return nil
}
