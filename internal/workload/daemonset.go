package workload

import (
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/headwind-sh/headwind/internal/model"
)

// DaemonSetAdapter wraps a DaemonSet.
type DaemonSetAdapter struct {
	DaemonSet *appsv1.DaemonSet
}

func (d *DaemonSetAdapter) Ref() model.WorkloadRef {
	return model.WorkloadRef{Kind: model.KindDaemonSet, Namespace: d.DaemonSet.Namespace, Name: d.DaemonSet.Name}
}

func (d *DaemonSetAdapter) Annotations() map[string]string {
	return d.DaemonSet.Annotations
}

func (d *DaemonSetAdapter) SetAnnotation(key, value string) {
	if d.DaemonSet.Annotations == nil {
		d.DaemonSet.Annotations = make(map[string]string)
	}
	d.DaemonSet.Annotations[key] = value
}

func (d *DaemonSetAdapter) Labels() map[string]string {
	return d.DaemonSet.Labels
}

func (d *DaemonSetAdapter) Slots() []Slot {
	return containerSlots(d.DaemonSet.Spec.Template.Spec.Containers)
}

func (d *DaemonSetAdapter) CurrentForSlot(slot string) (string, bool) {
	return currentForContainer(d.DaemonSet.Spec.Template.Spec.Containers, slot)
}

func (d *DaemonSetAdapter) SetSlot(slot, value string) error {
	return setContainerImage(d.DaemonSet.Spec.Template.Spec.Containers, slot, value)
}

func (d *DaemonSetAdapter) Selector() (labels.Selector, error) {
	return metav1.LabelSelectorAsSelector(d.DaemonSet.Spec.Selector)
}

func (d *DaemonSetAdapter) ProgressDeadlineExceeded() bool {
	// DaemonSets expose no progress condition either.
	return false
}

func (d *DaemonSetAdapter) Object() client.Object {
	return d.DaemonSet
}
