package workload

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/headwind-sh/headwind/internal/model"
)

// DeploymentAdapter wraps a Deployment.
type DeploymentAdapter struct {
	Deployment *appsv1.Deployment
}

func (d *DeploymentAdapter) Ref() model.WorkloadRef {
	return model.WorkloadRef{Kind: model.KindDeployment, Namespace: d.Deployment.Namespace, Name: d.Deployment.Name}
}

func (d *DeploymentAdapter) Annotations() map[string]string {
	return d.Deployment.Annotations
}

func (d *DeploymentAdapter) SetAnnotation(key, value string) {
	if d.Deployment.Annotations == nil {
		d.Deployment.Annotations = make(map[string]string)
	}
	d.Deployment.Annotations[key] = value
}

func (d *DeploymentAdapter) Labels() map[string]string {
	return d.Deployment.Labels
}

func (d *DeploymentAdapter) Slots() []Slot {
	return containerSlots(d.Deployment.Spec.Template.Spec.Containers)
}

func (d *DeploymentAdapter) CurrentForSlot(slot string) (string, bool) {
	return currentForContainer(d.Deployment.Spec.Template.Spec.Containers, slot)
}

func (d *DeploymentAdapter) SetSlot(slot, value string) error {
	return setContainerImage(d.Deployment.Spec.Template.Spec.Containers, slot, value)
}

func (d *DeploymentAdapter) Selector() (labels.Selector, error) {
	return metav1.LabelSelectorAsSelector(d.Deployment.Spec.Selector)
}

func (d *DeploymentAdapter) ProgressDeadlineExceeded() bool {
	for _, condition := range d.Deployment.Status.Conditions {
		if condition.Type == appsv1.DeploymentProgressing {
			if condition.Status == "False" || condition.Reason == "ProgressDeadlineExceeded" {
				return true
			}
		}
	}
	return false
}

func (d *DeploymentAdapter) Object() client.Object {
	return d.Deployment
}

// Shared helpers across the container-workload adapters.

func containerSlots(containers []corev1.Container) []Slot {
	slots := make([]Slot, 0, len(containers))
	for _, c := range containers {
		slots = append(slots, Slot{Name: c.Name, Current: c.Image})
	}
	return slots
}

func currentForContainer(containers []corev1.Container, slot string) (string, bool) {
	for _, c := range containers {
		if c.Name == slot {
			return c.Image, true
		}
	}
	return "", false
}

func setContainerImage(containers []corev1.Container, slot, image string) error {
	for i := range containers {
		if containers[i].Name == slot {
			containers[i].Image = image
			return nil
		}
	}
	return fmt.Errorf("container %q not found", slot)
}
