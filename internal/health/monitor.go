package health

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/workload"
)

// maxRestarts is the restart-count ceiling for a new-revision pod before a
// rollback is triggered.
const maxRestarts = 5

// WatchSpec describes one post-apply observation window.
type WatchSpec struct {
	Ref model.WorkloadRef

	// Selector matches the workload's pods; nil watches only the
	// workload's own failure condition (HelmRelease).
	Selector labels.Selector

	// NewImage attributes pods to the new revision. Pods still running the
	// previous image are ignored.
	NewImage string

	Timeout time.Duration

	// MaxReadinessFailures is how many consecutive unready observations a
	// new-revision pod gets before triggering rollback.
	MaxReadinessFailures int
}

// Watcher is the post-apply observation contract the pipeline consumes.
type Watcher interface {
	Watch(ctx context.Context, spec WatchSpec) (string, error)
}

// Monitor samples pod and workload state after an apply and decides
// whether the update must be rolled back.
type Monitor struct {
	client   client.Client
	interval time.Duration
}

// NewMonitor builds a Monitor with the default 5s sampling period.
func NewMonitor(c client.Client) *Monitor {
	return &Monitor{client: c, interval: 5 * time.Second}
}

// NewMonitorWithInterval is used by tests to tighten the sampling period.
func NewMonitorWithInterval(c client.Client, interval time.Duration) *Monitor {
	return &Monitor{client: c, interval: interval}
}

// Watch samples until the window elapses, a rollback trigger fires, or the
// context is canceled. It returns the trigger reason, or "" when the window
// closed cleanly. A context error means the verdict is unknown; the caller
// leaves the update unfinalized.
func (m *Monitor) Watch(ctx context.Context, spec WatchSpec) (string, error) {
	logger := log.FromContext(ctx).WithName("health-monitor").WithValues("workload", spec.Ref.String())
	logger.Info("Health watch started", "timeout", spec.Timeout, "newImage", spec.NewImage)

	deadline := time.NewTimer(spec.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	unreadyCounts := make(map[string]int)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			logger.Info("Health watch window elapsed without incident")
			return "", nil
		case <-ticker.C:
			reason, err := m.check(ctx, spec, unreadyCounts)
			if err != nil {
				// Transient observation errors do not fail the window.
				logger.Error(err, "health check sample failed")
				continue
			}
			if reason != "" {
				logger.Info("Rollback trigger observed", "reason", reason)
				return reason, nil
			}
		}
	}
}

func (m *Monitor) check(ctx context.Context, spec WatchSpec, unreadyCounts map[string]int) (string, error) {
	adapter, err := workload.Load(ctx, m.client, spec.Ref)
	if err != nil {
		return "", err
	}
	if adapter.ProgressDeadlineExceeded() {
		return "ProgressDeadlineExceeded", nil
	}
	if spec.Selector == nil {
		return "", nil
	}

	var pods corev1.PodList
	if err := m.client.List(ctx, &pods,
		client.InNamespace(spec.Ref.Namespace),
		client.MatchingLabelsSelector{Selector: spec.Selector},
	); err != nil {
		return "", err
	}

	for i := range pods.Items {
		pod := &pods.Items[i]
		if !m.isNewRevision(pod, spec.NewImage) {
			continue
		}
		if reason := m.checkPod(pod, spec, unreadyCounts); reason != "" {
			return reason, nil
		}
	}
	return "", nil
}

// isNewRevision reports whether the pod runs the freshly applied image.
func (m *Monitor) isNewRevision(pod *corev1.Pod, newImage string) bool {
	if newImage == "" {
		return true
	}
	for _, c := range pod.Spec.Containers {
		if c.Image == newImage {
			return true
		}
	}
	return false
}

func (m *Monitor) checkPod(pod *corev1.Pod, spec WatchSpec, unreadyCounts map[string]int) string {
	ready := true
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil {
			switch cs.State.Waiting.Reason {
			case "CrashLoopBackOff", "ImagePullBackOff":
				return fmt.Sprintf("pod %s container %s: %s", pod.Name, cs.Name, cs.State.Waiting.Reason)
			}
		}
		if cs.RestartCount > maxRestarts {
			return fmt.Sprintf("pod %s container %s: restart count %d exceeds %d", pod.Name, cs.Name, cs.RestartCount, maxRestarts)
		}
		if !cs.Ready {
			ready = false
		}
	}

	if ready {
		delete(unreadyCounts, pod.Name)
		return ""
	}
	unreadyCounts[pod.Name]++
	if unreadyCounts[pod.Name] > spec.MaxReadinessFailures {
		return fmt.Sprintf("pod %s: readiness failures exceeded %d", pod.Name, spec.MaxReadinessFailures)
	}
	return ""
}
