package workload

import (
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/headwind-sh/headwind/internal/model"
)

// StatefulSetAdapter wraps a StatefulSet.
type StatefulSetAdapter struct {
	StatefulSet *appsv1.StatefulSet
}

func (s *StatefulSetAdapter) Ref() model.WorkloadRef {
	return model.WorkloadRef{Kind: model.KindStatefulSet, Namespace: s.StatefulSet.Namespace, Name: s.StatefulSet.Name}
}

func (s *StatefulSetAdapter) Annotations() map[string]string {
	return s.StatefulSet.Annotations
}

func (s *StatefulSetAdapter) SetAnnotation(key, value string) {
	if s.StatefulSet.Annotations == nil {
		s.StatefulSet.Annotations = make(map[string]string)
	}
	s.StatefulSet.Annotations[key] = value
}

func (s *StatefulSetAdapter) Labels() map[string]string {
	return s.StatefulSet.Labels
}

func (s *StatefulSetAdapter) Slots() []Slot {
	return containerSlots(s.StatefulSet.Spec.Template.Spec.Containers)
}

func (s *StatefulSetAdapter) CurrentForSlot(slot string) (string, bool) {
	return currentForContainer(s.StatefulSet.Spec.Template.Spec.Containers, slot)
}

func (s *StatefulSetAdapter) SetSlot(slot, value string) error {
	return setContainerImage(s.StatefulSet.Spec.Template.Spec.Containers, slot, value)
}

func (s *StatefulSetAdapter) Selector() (labels.Selector, error) {
	return metav1.LabelSelectorAsSelector(s.StatefulSet.Spec.Selector)
}

func (s *StatefulSetAdapter) ProgressDeadlineExceeded() bool {
	// StatefulSets expose no progress condition; the monitor relies on
	// pod-level signals and its timeout for this kind.
	return false
}

func (s *StatefulSetAdapter) Object() client.Object {
	return s.StatefulSet
}
