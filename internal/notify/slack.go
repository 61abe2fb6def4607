// Package notify sends fire-and-forget Slack notifications for new demo
// sessions. Failures are logged and never surface to the request path.
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

// Notifier is the hook the orchestrator calls after a successful admission.
type Notifier interface {
	SessionCreated(ctx context.Context, email, sessionID string)
}

// Slack posts a message to an incoming-webhook URL. A zero URL disables it.
type Slack struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewSlack creates a Slack notifier. webhookURL may be empty.
func NewSlack(webhookURL string, logger *slog.Logger) *Slack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SessionCreated posts a new-session message. No-op without a webhook URL.
func (s *Slack) SessionCreated(ctx context.Context, email, sessionID string) {
	if s.webhookURL == "" {
		return
	}

	short := sessionID
	if len(short) > 13 {
		short = short[:13]
	}
	msg := slackMessage{
		Text: "New InfraIQ Demo Session",
		Blocks: []slackBlock{{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*New Demo Session Started*\n\nEmail: %s\nSession: `%s...`\nTime: %s",
					email, short, time.Now().UTC().Format("2006-01-02 15:04 UTC")),
			},
		}},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal slack message", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("build slack request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("slack notification failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn("slack notification rejected", "status", resp.StatusCode)
	}
}
