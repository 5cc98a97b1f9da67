package workload

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/headwind-sh/headwind/internal/model"
)

// Slot is one tracked update position: a container name and its current
// image for container workloads, or the chart name and its current version
// for a HelmRelease.
type Slot struct {
	Name    string
	Current string
}

// Adapter abstracts the operations the update pipeline needs across all
// managed workload kinds: reading slots, mutating one slot, and exposing
// enough status for health monitoring.
type Adapter interface {
	Ref() model.WorkloadRef
	Annotations() map[string]string
	SetAnnotation(key, value string)
	Labels() map[string]string

	Slots() []Slot
	CurrentForSlot(slot string) (string, bool)
	SetSlot(slot, value string) error

	// Selector matches the workload's pods. A nil selector means the kind
	// has no directly observable pods (HelmRelease).
	Selector() (labels.Selector, error)
	// ProgressDeadlineExceeded reports a platform-level rollout failure.
	ProgressDeadlineExceeded() bool

	Object() client.Object
}

// ChartAdapter is implemented by the HelmRelease adapter.
type ChartAdapter interface {
	Adapter
	Chart() (name, version string)
	SourceRef() (kind, name, namespace string)
}

// Load reads the referenced workload fresh from the API and wraps it. Apply
// retries call this again so every compare-and-set attempt starts from the
// current resource version.
func Load(ctx context.Context, c client.Client, ref model.WorkloadRef) (Adapter, error) {
	var obj client.Object
	switch ref.Kind {
	case model.KindDeployment:
		obj = &appsv1.Deployment{}
	case model.KindStatefulSet:
		obj = &appsv1.StatefulSet{}
	case model.KindDaemonSet:
		obj = &appsv1.DaemonSet{}
	case model.KindHelmRelease:
		u := &unstructured.Unstructured{}
		u.SetGroupVersionKind(HelmReleaseGVK)
		obj = u
	default:
		return nil, fmt.Errorf("unsupported workload kind %q", ref.Kind)
	}

	key := client.ObjectKey{Namespace: ref.Namespace, Name: ref.Name}
	if err := c.Get(ctx, key, obj); err != nil {
		return nil, err
	}
	return FromObject(obj)
}

// FromObject wraps an already-fetched workload object.
func FromObject(obj client.Object) (Adapter, error) {
	switch o := obj.(type) {
	case *appsv1.Deployment:
		return &DeploymentAdapter{Deployment: o}, nil
	case *appsv1.StatefulSet:
		return &StatefulSetAdapter{StatefulSet: o}, nil
	case *appsv1.DaemonSet:
		return &DaemonSetAdapter{DaemonSet: o}, nil
	case *unstructured.Unstructured:
		if o.GroupVersionKind().Kind == HelmReleaseGVK.Kind {
			return &HelmReleaseAdapter{Release: o}, nil
		}
		return nil, fmt.Errorf("unsupported unstructured kind %q", o.GroupVersionKind().Kind)
	}
	return nil, fmt.Errorf("unsupported workload type %T", obj)
}

// ParseKind maps a TargetRef kind string onto a managed workload kind.
func ParseKind(s string) (model.WorkloadKind, error) {
	switch k := model.WorkloadKind(s); k {
	case model.KindDeployment, model.KindStatefulSet, model.KindDaemonSet, model.KindHelmRelease:
		return k, nil
	}
	return "", fmt.Errorf("unsupported workload kind %q", s)
}
