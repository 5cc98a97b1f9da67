package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/headwind-sh/headwind/internal/model"
)

type recordingSink struct {
	mu     sync.Mutex
	name   string
	fail   bool
	events []model.UpdateEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, event model.UpdateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestQueueFansOutToAllSinks(t *testing.T) {
	events := make(chan model.UpdateEvent, 10)
	first := &recordingSink{name: "first"}
	second := &recordingSink{name: "second"}
	queue := NewQueue(events, []EventSink{first, second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = queue.Start(ctx)
		close(done)
	}()

	ref := model.WorkloadRef{Kind: model.KindDeployment, Namespace: "default", Name: "web"}
	events <- model.NewUpdateEvent(model.EventUpdateCompleted, ref, "app", "a", "b", model.SourceMetadata{})
	events <- model.NewUpdateEvent(model.EventUpdateFailed, ref, "app", "b", "a", model.SourceMetadata{})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && (first.count() < 2 || second.count() < 2) {
		time.Sleep(5 * time.Millisecond)
	}
	if first.count() != 2 || second.count() != 2 {
		t.Errorf("fan-out incomplete: first=%d second=%d", first.count(), second.count())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue did not stop on context cancellation")
	}
}

func TestQueueFailingSinkDoesNotBlockOthers(t *testing.T) {
	events := make(chan model.UpdateEvent, 10)
	broken := &recordingSink{name: "broken", fail: true}
	working := &recordingSink{name: "working"}
	queue := NewQueue(events, []EventSink{broken, working})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.Start(ctx) }()

	ref := model.WorkloadRef{Kind: model.KindDeployment, Namespace: "default", Name: "web"}
	events <- model.NewUpdateEvent(model.EventRollbackCompleted, ref, "app", "b", "a", model.SourceMetadata{})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && working.count() < 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if working.count() != 1 {
		t.Error("working sink should still receive events when another sink fails")
	}
}
