package teams

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/model"
)

// Sink posts pipeline events to a Microsoft Teams incoming webhook as
// MessageCards.
type Sink struct {
	client     *resty.Client
	webhookURL string
}

func New(webhookURL string, timeout time.Duration, maxRetries int) *Sink {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	return &Sink{client: client, webhookURL: webhookURL}
}

func (s *Sink) Name() string { return "teams" }

type messageCard struct {
	Type       string    `json:"@type"`
	Context    string    `json:"@context"`
	ThemeColor string    `json:"themeColor"`
	Summary    string    `json:"summary"`
	Sections   []section `json:"sections"`
}

type section struct {
	ActivityTitle string `json:"activityTitle"`
	Text          string `json:"text,omitempty"`
	Facts         []fact `json:"facts,omitempty"`
}

type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Send posts one event as a MessageCard.
func (s *Sink) Send(ctx context.Context, event model.UpdateEvent) error {
	card := messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: themeFor(event.Type),
		Summary:    fmt.Sprintf("Headwind: %s", event.Type),
		Sections: []section{{
			ActivityTitle: fmt.Sprintf("**%s** — %s/%s", event.Type, event.Workload.Namespace, event.Workload.Name),
			Text:          event.Cause,
			Facts: []fact{
				{Name: "Kind", Value: string(event.Workload.Kind)},
				{Name: "Container", Value: event.Slot},
				{Name: "From", Value: event.FromVersion},
				{Name: "To", Value: event.ToVersion},
			},
		}},
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(card).
		Post(s.webhookURL)
	if err != nil {
		return fmt.Errorf("posting to teams: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("teams returned status %d: %s", resp.StatusCode(), resp.String())
	}

	metrics.NotificationsTeamsSent.Inc()
	return nil
}

func themeFor(t model.EventType) string {
	switch t {
	case model.EventUpdateCompleted, model.EventRollbackCompleted:
		return "2EB886"
	case model.EventUpdateFailed, model.EventRollbackFailed, model.EventRollbackTriggered:
		return "A30200"
	default:
		return "439FE0"
	}
}
