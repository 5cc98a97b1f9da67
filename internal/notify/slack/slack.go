package slack

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/model"
)

// Sink posts pipeline events to a Slack incoming webhook.
type Sink struct {
	client     *resty.Client
	webhookURL string
	channel    string
}

// New builds a Slack sink. channel may be empty to use the webhook default.
func New(webhookURL, channel string, timeout time.Duration, maxRetries int) *Sink {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	return &Sink{client: client, webhookURL: webhookURL, channel: channel}
}

func (s *Sink) Name() string { return "slack" }

type message struct {
	Channel     string       `json:"channel,omitempty"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Color  string  `json:"color"`
	Title  string  `json:"title"`
	Text   string  `json:"text,omitempty"`
	Fields []field `json:"fields,omitempty"`
	Ts     int64   `json:"ts"`
}

type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Send posts one event as a Slack attachment.
func (s *Sink) Send(ctx context.Context, event model.UpdateEvent) error {
	logger := log.FromContext(ctx)

	msg := message{
		Channel: s.channel,
		Attachments: []attachment{{
			Color: colorFor(event.Type),
			Title: titleFor(event.Type),
			Text:  event.Cause,
			Ts:    event.Timestamp.Unix(),
			Fields: []field{
				{Title: "Workload", Value: fmt.Sprintf("%s/%s", event.Workload.Namespace, event.Workload.Name), Short: true},
				{Title: "Kind", Value: string(event.Workload.Kind), Short: true},
				{Title: "From", Value: event.FromVersion, Short: true},
				{Title: "To", Value: event.ToVersion, Short: true},
			},
		}},
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(s.webhookURL)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("slack returned status %d: %s", resp.StatusCode(), resp.String())
	}

	metrics.NotificationsSlackSent.Inc()
	logger.V(1).Info("Slack notification delivered", "event", event.Type, "workload", event.Workload.String())
	return nil
}

func colorFor(t model.EventType) string {
	switch t {
	case model.EventUpdateCompleted, model.EventRollbackCompleted:
		return "good"
	case model.EventUpdateFailed, model.EventRollbackFailed, model.EventRollbackTriggered:
		return "danger"
	default:
		return "#439FE0"
	}
}

func titleFor(t model.EventType) string {
	switch t {
	case model.EventUpdateRequestCreated:
		return "Update request created"
	case model.EventUpdateApproved:
		return "Update approved"
	case model.EventUpdateRejected:
		return "Update rejected"
	case model.EventUpdateCompleted:
		return "Update completed"
	case model.EventUpdateFailed:
		return "Update failed"
	case model.EventRollbackTriggered:
		return "Rollback triggered"
	case model.EventRollbackCompleted:
		return "Rollback completed"
	case model.EventRollbackFailed:
		return "Rollback failed"
	}
	return string(t)
}
