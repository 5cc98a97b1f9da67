package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/model"
)

// SignatureHeader carries the HMAC of the request body when signing is on.
const SignatureHeader = "X-Headwind-Signature"

// Sink delivers pipeline events to a generic HTTP endpoint, optionally
// signed with HMAC-SHA256 over the raw request body.
type Sink struct {
	client   *resty.Client
	endpoint string
	secret   []byte
}

// New builds a webhook sink. secret may be empty to disable signing.
func New(endpoint, secret string, timeout time.Duration, maxRetries int) *Sink {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Sink{client: client, endpoint: endpoint, secret: key}
}

func (s *Sink) Name() string { return "webhook" }

// payload is the documented generic-webhook notification body.
type payload struct {
	Event     string     `json:"event"`
	Timestamp time.Time  `json:"timestamp"`
	Deploy    deployment `json:"deployment"`

	Policy            string `json:"policy,omitempty"`
	RequiresApproval  bool   `json:"requiresApproval"`
	UpdateRequestName string `json:"updateRequestName,omitempty"`
}

type deployment struct {
	Name         string `json:"name"`
	Namespace    string `json:"namespace"`
	Kind         string `json:"kind,omitempty"`
	CurrentImage string `json:"currentImage,omitempty"`
	NewImage     string `json:"newImage,omitempty"`
	Container    string `json:"container,omitempty"`
}

// Sign computes the signature header value for a request body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Send delivers one event. The body is marshaled once so the signature is
// computed over the exact bytes sent.
func (s *Sink) Send(ctx context.Context, event model.UpdateEvent) error {
	body, err := json.Marshal(payload{
		Event:     string(event.Type),
		Timestamp: event.Timestamp,
		Deploy: deployment{
			Name:         event.Workload.Name,
			Namespace:    event.Workload.Namespace,
			Kind:         string(event.Workload.Kind),
			CurrentImage: event.FromVersion,
			NewImage:     event.ToVersion,
			Container:    event.Slot,
		},
		Policy:            event.Policy,
		RequiresApproval:  event.RequiresApproval,
		UpdateRequestName: event.UpdateRequestName,
	})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if s.secret != nil {
		req.SetHeader(SignatureHeader, Sign(s.secret, body))
	}

	resp, err := req.Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("posting webhook notification: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook endpoint returned status %d: %s", resp.StatusCode(), resp.String())
	}

	metrics.NotificationsWebhookSent.Inc()
	return nil
}
