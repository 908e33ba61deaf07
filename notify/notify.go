// Package notify defines the outbound notification contract. The
// dispatch core never talks to Twilio or SendGrid directly; it hands
// messages to a Notifier and the deployment decides where they go.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Notifier delivers out-of-band notifications to customers, pros, and
// admins. Implementations must be safe for concurrent use. Failures are
// the implementation's problem to report; dispatch flows treat
// notification errors as non-fatal.
type Notifier interface {
	SendSMS(ctx context.Context, to, message string) error
	SendEmail(ctx context.Context, to, subject, body string) error
}

// LogNotifier writes notifications to the log instead of sending them.
// Useful for development and as a safe default.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendSMS(_ context.Context, to, message string) error {
	n.logger.Info("sms", slog.String("to", to), slog.String("message", message))
	return nil
}

func (n *LogNotifier) SendEmail(_ context.Context, to, subject, _ string) error {
	n.logger.Info("email", slog.String("to", to), slog.String("subject", subject))
	return nil
}

// WebhookNotifier POSTs each notification as JSON to a single endpoint.
// A downstream relay (messaging gateway, n8n flow, etc.) fans them out
// to the real providers.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(n *WebhookNotifier) { n.client = c }
}

// NewWebhookNotifier creates a notifier that POSTs to url.
func NewWebhookNotifier(url string, logger *slog.Logger, opts ...WebhookOption) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type webhookPayload struct {
	Channel string `json:"channel"` // "sms" or "email"
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

func (n *WebhookNotifier) SendSMS(ctx context.Context, to, message string) error {
	return n.post(ctx, webhookPayload{Channel: "sms", To: to, Body: message})
}

func (n *WebhookNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	return n.post(ctx, webhookPayload{Channel: "email", To: to, Subject: subject, Body: body})
}

func (n *WebhookNotifier) post(ctx context.Context, p webhookPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}
