package workload

import (
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/headwind-sh/headwind/internal/model"
)

func deployment() *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": "web"}},
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{Name: "app", Image: "nginx:1.25.0"},
						{Name: "sidecar", Image: "envoy:1.30.0"},
					},
				},
			},
		},
	}
}

func TestDeploymentAdapterSlots(t *testing.T) {
	adapter := &DeploymentAdapter{Deployment: deployment()}

	slots := adapter.Slots()
	if len(slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(slots))
	}
	if slots[0].Name != "app" || slots[0].Current != "nginx:1.25.0" {
		t.Errorf("first slot = %+v", slots[0])
	}

	current, ok := adapter.CurrentForSlot("sidecar")
	if !ok || current != "envoy:1.30.0" {
		t.Errorf("CurrentForSlot(sidecar) = %q, %v", current, ok)
	}

	if err := adapter.SetSlot("app", "nginx:1.26.0"); err != nil {
		t.Fatal(err)
	}
	if got := adapter.Deployment.Spec.Template.Spec.Containers[0].Image; got != "nginx:1.26.0" {
		t.Errorf("SetSlot did not mutate container image: %q", got)
	}
	if got := adapter.Deployment.Spec.Template.Spec.Containers[1].Image; got != "envoy:1.30.0" {
		t.Errorf("SetSlot touched the wrong container: %q", got)
	}

	if err := adapter.SetSlot("missing", "x"); err == nil {
		t.Error("SetSlot on unknown container should error")
	}
}

func TestDeploymentAdapterAnnotationsAndSelector(t *testing.T) {
	adapter := &DeploymentAdapter{Deployment: deployment()}

	adapter.SetAnnotation("headwind.sh/last-update", "2024-06-01T12:00:00Z")
	if adapter.Annotations()["headwind.sh/last-update"] == "" {
		t.Error("SetAnnotation on nil map should initialize it")
	}

	selector, err := adapter.Selector()
	if err != nil {
		t.Fatal(err)
	}
	if !selector.Matches(labels.Set{"app": "web"}) {
		t.Error("selector should match the template labels")
	}
}

func TestProgressDeadlineExceeded(t *testing.T) {
	dep := deployment()
	dep.Status.Conditions = []appsv1.DeploymentCondition{{
		Type:   appsv1.DeploymentProgressing,
		Status: corev1.ConditionTrue,
		Reason: "NewReplicaSetAvailable",
	}}
	adapter := &DeploymentAdapter{Deployment: dep}
	if adapter.ProgressDeadlineExceeded() {
		t.Error("healthy progressing condition should not report failure")
	}

	dep.Status.Conditions[0].Reason = "ProgressDeadlineExceeded"
	if !adapter.ProgressDeadlineExceeded() {
		t.Error("ProgressDeadlineExceeded reason should report failure")
	}
}

func helmRelease() *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "helm.toolkit.fluxcd.io/v2",
		"kind":       "HelmRelease",
		"metadata": map[string]any{
			"name":      "podinfo",
			"namespace": "default",
		},
		"spec": map[string]any{
			"chart": map[string]any{
				"spec": map[string]any{
					"chart":   "podinfo",
					"version": "6.4.0",
					"sourceRef": map[string]any{
						"kind": "HelmRepository",
						"name": "podinfo-repo",
					},
				},
			},
		},
	}}
	return u
}

func TestHelmReleaseAdapter(t *testing.T) {
	adapter := &HelmReleaseAdapter{Release: helmRelease()}

	if ref := adapter.Ref(); ref.Kind != model.KindHelmRelease || ref.Name != "podinfo" {
		t.Errorf("Ref = %+v", ref)
	}

	chart, version := adapter.Chart()
	if chart != "podinfo" || version != "6.4.0" {
		t.Errorf("Chart = (%q, %q)", chart, version)
	}

	slots := adapter.Slots()
	if len(slots) != 1 || slots[0].Name != ChartSlot || slots[0].Current != "6.4.0" {
		t.Errorf("Slots = %+v", slots)
	}

	kind, name, namespace := adapter.SourceRef()
	if kind != "HelmRepository" || name != "podinfo-repo" || namespace != "default" {
		t.Errorf("SourceRef = (%q, %q, %q)", kind, name, namespace)
	}

	if err := adapter.SetSlot(ChartSlot, "6.5.0"); err != nil {
		t.Fatal(err)
	}
	if _, updated := adapter.Chart(); updated != "6.5.0" {
		t.Errorf("SetSlot did not update chart version: %q", updated)
	}

	if err := adapter.SetSlot("other", "1.0.0"); err == nil {
		t.Error("SetSlot on unknown slot should error")
	}

	selector, err := adapter.Selector()
	if err != nil || selector != nil {
		t.Errorf("HelmRelease selector should be nil, got %v (%v)", selector, err)
	}
}

func TestFromObject(t *testing.T) {
	if _, err := FromObject(deployment()); err != nil {
		t.Errorf("Deployment: %v", err)
	}
	if _, err := FromObject(&appsv1.StatefulSet{}); err != nil {
		t.Errorf("StatefulSet: %v", err)
	}
	if _, err := FromObject(&appsv1.DaemonSet{}); err != nil {
		t.Errorf("DaemonSet: %v", err)
	}
	if _, err := FromObject(helmRelease()); err != nil {
		t.Errorf("HelmRelease: %v", err)
	}
	if _, err := FromObject(&corev1.Pod{}); err == nil {
		t.Error("Pod is not a managed workload kind")
	}
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"Deployment", "StatefulSet", "DaemonSet", "HelmRelease"} {
		if _, err := ParseKind(valid); err != nil {
			t.Errorf("ParseKind(%q): %v", valid, err)
		}
	}
	if _, err := ParseKind("CronJob"); err == nil {
		t.Error("ParseKind should reject unmanaged kinds")
	}
}
