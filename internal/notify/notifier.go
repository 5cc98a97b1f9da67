package notify

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/model"
)

// EventSink delivers one pipeline event to an external destination. Sinks
// own their retry behavior; a returned error means delivery ultimately
// failed and is counted, never propagated into the pipeline.
type EventSink interface {
	Name() string
	Send(ctx context.Context, event model.UpdateEvent) error
}

// Queue drains pipeline events to all configured sinks.
type Queue struct {
	events <-chan model.UpdateEvent
	sinks  []EventSink
}

// NewQueue builds a queue over the given event channel and sinks.
func NewQueue(events <-chan model.UpdateEvent, sinks []EventSink) *Queue {
	return &Queue{events: events, sinks: sinks}
}

// Start drains events until the context is canceled or the channel closes.
// It implements manager.Runnable so the queue shares the manager lifecycle.
func (q *Queue) Start(ctx context.Context) error {
	logger := log.FromContext(ctx).WithName("notify-queue")
	logger.Info("Notification queue started", "sinks", len(q.sinks))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-q.events:
			if !ok {
				return nil
			}
			for _, sink := range q.sinks {
				if err := sink.Send(ctx, event); err != nil {
					metrics.NotificationsFailed.Inc()
					logger.Error(err, "failed to deliver notification",
						"sink", sink.Name(),
						"event", event.Type,
						"workload", event.Workload.String(),
					)
					continue
				}
				metrics.NotificationsSent.Inc()
			}
		}
	}
}
