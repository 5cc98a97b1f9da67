package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/headwind-sh/headwind/internal/model"
)

// Sink publishes pipeline events to a Google Cloud Pub/Sub topic. Ordering
// per workload is preserved via ordering keys, so downstream consumers see
// update_request_created before update_completed for the same workload.
type Sink struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topicPath string
	clusterID string
}

// ParseTopicPath parses a full Pub/Sub topic path and returns projectID and topicID.
// Expected format: projects/<project>/topics/<topic>
func ParseTopicPath(topicPath string) (projectID, topicID string, err error) {
	parts := strings.Split(topicPath, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "topics" {
		return "", "", fmt.Errorf("invalid topic path %q: expected format projects/<project>/topics/<topic>", topicPath)
	}
	return parts[1], parts[3], nil
}

// New creates a Pub/Sub sink.
//
// Authentication is handled via Application Default Credentials (ADC):
//   - Workload Identity (GKE): Auto-detected from metadata server (recommended)
//   - Service Account JSON key: Set GOOGLE_APPLICATION_CREDENTIALS env var
//   - Default credentials: gcloud auth application-default login
func New(ctx context.Context, topicPath, clusterID string) (*Sink, error) {
	projectID, topicID, err := ParseTopicPath(topicPath)
	if err != nil {
		return nil, err
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	// The subscription must also have message ordering enabled.
	publisher := client.Publisher(topicID)
	publisher.EnableMessageOrdering = true

	return &Sink{
		client:    client,
		publisher: publisher,
		topicPath: topicPath,
		clusterID: clusterID,
	}, nil
}

func (s *Sink) Name() string { return "pubsub" }

// Send publishes one event and waits for the server acknowledgement.
func (s *Sink) Send(ctx context.Context, event model.UpdateEvent) error {
	logger := log.FromContext(ctx)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	orderingKey := fmt.Sprintf("%s/%s/%s", s.clusterID, event.Workload.Namespace, event.Workload.Name)

	attributes := map[string]string{
		"cluster_name":  s.clusterID,
		"namespace":     event.Workload.Namespace,
		"workload_name": event.Workload.Name,
		"workload_type": string(event.Workload.Kind),
		"event_type":    string(event.Type),
	}

	result := s.publisher.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attributes,
		OrderingKey: orderingKey,
	})

	msgID, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish event to pubsub: %w", err)
	}

	logger.V(1).Info("Event published to Pub/Sub",
		"topic", s.topicPath,
		"eventID", event.EventID,
		"messageID", msgID,
	)
	return nil
}

// Stop stops the publisher and closes the client.
func (s *Sink) Stop() {
	if s.publisher != nil {
		s.publisher.Stop()
	}
	if s.client != nil {
		_ = s.client.Close()
	}
}
