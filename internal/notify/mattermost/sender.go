// Package mattermost posts transition notifications to a Mattermost incoming webhook.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/incident-console/internal/notify"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "Incident Console"
)

// Config holds Mattermost sender configuration.
type Config struct {
	WebhookURL string
	Username   string // display name, default "Incident Console"
	IconURL    string
	Channel    string // overrides the webhook's default channel
	Timeout    time.Duration
}

// Sender implements notify.Notifier via an Incoming Webhook.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new Mattermost sender.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Notify renders the event and posts it.
func (s *Sender) Notify(ctx context.Context, event notify.TransitionEvent) error {
	return s.Send(ctx, notify.Render(event))
}

// Send posts a rendered message.
func (s *Sender) Send(ctx context.Context, msg notify.Message) error {
	if s.config.WebhookURL == "" {
		return &PermanentError{Message: "webhook URL is empty"}
	}

	payload := webhookPayload{
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
		Channel:  s.config.Channel,
		Text:     msg.Body,
	}
	if msg.Subject != "" {
		payload.Text = fmt.Sprintf("### %s\n\n%s", msg.Subject, msg.Body)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.checkResponse(resp)
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

func (s *Sender) checkResponse(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		slog.Debug("mattermost message sent", "webhook", maskWebhookURL(s.config.WebhookURL))
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &PermanentError{Code: resp.StatusCode, Message: "invalid or expired webhook"}
	case resp.StatusCode == http.StatusNotFound:
		return &PermanentError{Code: resp.StatusCode, Message: "webhook not found"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{Code: resp.StatusCode, Message: "rate limited"}
	case resp.StatusCode >= 500:
		return &RetryableError{Code: resp.StatusCode, Message: fmt.Sprintf("server error: %s", body)}
	default:
		return &PermanentError{Code: resp.StatusCode, Message: fmt.Sprintf("unexpected response: %s", body)}
	}
}

// maskWebhookURL hides the secret part of the URL for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// PermanentError indicates a delivery failure that will not go away on retry.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("mattermost error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("mattermost error: %s", e.Message)
}

// IsRetryable returns false.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary delivery failure.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("mattermost error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("mattermost error: %s", e.Message)
}

// IsRetryable returns true.
func (e *RetryableError) IsRetryable() bool { return true }
