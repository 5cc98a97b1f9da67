package reconciler

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/headwind-sh/headwind/internal/dispatch"
	"github.com/headwind-sh/headwind/internal/helmrepo"
	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/workload"
)

// HelmReleaseReconciler keeps HelmReleases in the tracked-workload index
// and resolves their chart repository and credentials so the poller can
// enumerate candidate versions.
type HelmReleaseReconciler struct {
	*WorkloadReconciler
	Credentials *helmrepo.CredentialStore
}

func NewHelmReleaseReconciler(wr *WorkloadReconciler, creds *helmrepo.CredentialStore) *HelmReleaseReconciler {
	return &HelmReleaseReconciler{WorkloadReconciler: wr, Credentials: creds}
}

// +kubebuilder:rbac:groups=helm.toolkit.fluxcd.io,resources=helmreleases,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=source.toolkit.fluxcd.io,resources=helmrepositories,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get

func (hr *HelmReleaseReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	resource := &unstructured.Unstructured{}
	resource.SetGroupVersionKind(workload.HelmReleaseGVK)
	if err := hr.Get(ctx, req.NamespacedName, resource); err != nil {
		if apierrors.IsNotFound(err) {
			hr.HandleDeletion(ctx, model.WorkloadRef{Kind: model.KindHelmRelease, Namespace: req.Namespace, Name: req.Name})
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	adapter := &workload.HelmReleaseAdapter{Release: resource}
	return hr.ReconcileWorkload(ctx, adapter, func(ctx context.Context, tracked *dispatch.Tracked) {
		hr.resolveChartSource(ctx, adapter, tracked)
	})
}

// resolveChartSource follows the release's sourceRef to its HelmRepository
// and stores the repository URL plus any secret-backed credentials on the
// tracked entry. Resolution failures leave the release tracked for webhook
// events; only polling needs the repository.
func (hr *HelmReleaseReconciler) resolveChartSource(ctx context.Context, adapter *workload.HelmReleaseAdapter, tracked *dispatch.Tracked) {
	log := ctrl.LoggerFrom(ctx)

	chart, _ := adapter.Chart()
	tracked.Chart = chart

	kind, name, namespace := adapter.SourceRef()
	if kind != workload.HelmRepositoryGVK.Kind || name == "" {
		return
	}

	repo := &unstructured.Unstructured{}
	repo.SetGroupVersionKind(workload.HelmRepositoryGVK)
	if err := hr.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, repo); err != nil {
		log.Error(err, "failed to resolve chart repository", "helmRepository", namespace+"/"+name)
		return
	}

	url, _, _ := unstructured.NestedString(repo.Object, "spec", "url")
	tracked.ChartRepoURL = url
	if url == "" {
		return
	}

	secretName, _, _ := unstructured.NestedString(repo.Object, "spec", "secretRef", "name")
	if secretName == "" {
		hr.Credentials.Set(url, nil)
		return
	}

	secret := &corev1.Secret{}
	if err := hr.Get(ctx, types.NamespacedName{Namespace: namespace, Name: secretName}, secret); err != nil {
		log.Error(err, "failed to read chart repository secret", "secret", namespace+"/"+secretName)
		return
	}
	creds := &helmrepo.Credentials{
		Username: string(secret.Data["username"]),
		Password: string(secret.Data["password"]),
	}
	hr.Credentials.Set(url, creds)
	tracked.ChartCreds = creds
}

// SetupWithManager sets up the controller with the Manager.
func (hr *HelmReleaseReconciler) SetupWithManager(mgr ctrl.Manager) error {
	release := &unstructured.Unstructured{}
	release.SetGroupVersionKind(workload.HelmReleaseGVK)

	return ctrl.NewControllerManagedBy(mgr).
		For(release).
		WithEventFilter(WorkloadChangedPredicate()).
		Complete(hr)
}
