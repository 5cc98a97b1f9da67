package workload

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/headwind-sh/headwind/internal/model"
)

// HelmReleaseGVK identifies Flux HelmRelease resources. They are handled as
// unstructured objects so the controller does not pin a Flux API module.
var HelmReleaseGVK = schema.GroupVersionKind{
	Group:   "helm.toolkit.fluxcd.io",
	Version: "v2",
	Kind:    "HelmRelease",
}

// HelmRepositoryGVK identifies the chart repository resources a HelmRelease
// links to through spec.chart.spec.sourceRef.
var HelmRepositoryGVK = schema.GroupVersionKind{
	Group:   "source.toolkit.fluxcd.io",
	Version: "v1",
	Kind:    "HelmRepository",
}

// HelmReleaseAdapter wraps a Flux HelmRelease. The single slot is the chart
// name and its value is the chart version pinned in the spec.
type HelmReleaseAdapter struct {
	Release *unstructured.Unstructured
}

func (h *HelmReleaseAdapter) Ref() model.WorkloadRef {
	return model.WorkloadRef{Kind: model.KindHelmRelease, Namespace: h.Release.GetNamespace(), Name: h.Release.GetName()}
}

func (h *HelmReleaseAdapter) Annotations() map[string]string {
	return h.Release.GetAnnotations()
}

func (h *HelmReleaseAdapter) SetAnnotation(key, value string) {
	ann := h.Release.GetAnnotations()
	if ann == nil {
		ann = make(map[string]string)
	}
	ann[key] = value
	h.Release.SetAnnotations(ann)
}

func (h *HelmReleaseAdapter) Labels() map[string]string {
	return h.Release.GetLabels()
}

// Chart returns the chart name and the version pinned in the spec.
func (h *HelmReleaseAdapter) Chart() (string, string) {
	name, _, _ := unstructured.NestedString(h.Release.Object, "spec", "chart", "spec", "chart")
	version, _, _ := unstructured.NestedString(h.Release.Object, "spec", "chart", "spec", "version")
	return name, version
}

// SourceRef returns the linked chart repository resource.
func (h *HelmReleaseAdapter) SourceRef() (kind, name, namespace string) {
	kind, _, _ = unstructured.NestedString(h.Release.Object, "spec", "chart", "spec", "sourceRef", "kind")
	name, _, _ = unstructured.NestedString(h.Release.Object, "spec", "chart", "spec", "sourceRef", "name")
	namespace, _, _ = unstructured.NestedString(h.Release.Object, "spec", "chart", "spec", "sourceRef", "namespace")
	if namespace == "" {
		namespace = h.Release.GetNamespace()
	}
	return kind, name, namespace
}

// ChartSlot is the single slot name every HelmRelease exposes.
const ChartSlot = "chart"

func (h *HelmReleaseAdapter) Slots() []Slot {
	name, version := h.Chart()
	if name == "" {
		return nil
	}
	return []Slot{{Name: ChartSlot, Current: version}}
}

func (h *HelmReleaseAdapter) CurrentForSlot(slot string) (string, bool) {
	if slot != ChartSlot {
		return "", false
	}
	_, version := h.Chart()
	return version, true
}

func (h *HelmReleaseAdapter) SetSlot(slot, value string) error {
	if slot != ChartSlot {
		return fmt.Errorf("unknown slot %q", slot)
	}
	return unstructured.SetNestedField(h.Release.Object, value, "spec", "chart", "spec", "version")
}

// Selector is nil: a HelmRelease has no directly attributable pods, so the
// health monitor falls back to the release's own failure condition.
func (h *HelmReleaseAdapter) Selector() (labels.Selector, error) {
	return nil, nil
}

func (h *HelmReleaseAdapter) ProgressDeadlineExceeded() bool {
	conditions, _, _ := unstructured.NestedSlice(h.Release.Object, "status", "conditions")
	for _, c := range conditions {
		cond, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if cond["type"] == "Ready" && cond["status"] == "False" {
			reason, _ := cond["reason"].(string)
			if reason == "UpgradeFailed" || reason == "InstallFailed" {
				return true
			}
		}
	}
	return false
}

func (h *HelmReleaseAdapter) Object() client.Object {
	return h.Release
}
