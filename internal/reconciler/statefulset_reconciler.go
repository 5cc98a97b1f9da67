package reconciler

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/workload"
)

// StatefulSetReconciler keeps StatefulSets in the tracked-workload index.
type StatefulSetReconciler struct {
	*WorkloadReconciler
}

func NewStatefulSetReconciler(wr *WorkloadReconciler) *StatefulSetReconciler {
	return &StatefulSetReconciler{WorkloadReconciler: wr}
}

// +kubebuilder:rbac:groups=apps,resources=statefulsets,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=apps,resources=statefulsets/status,verbs=get

func (sr *StatefulSetReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	resource := &appsv1.StatefulSet{}
	if err := sr.Get(ctx, req.NamespacedName, resource); err != nil {
		if apierrors.IsNotFound(err) {
			sr.HandleDeletion(ctx, model.WorkloadRef{Kind: model.KindStatefulSet, Namespace: req.Namespace, Name: req.Name})
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	return sr.ReconcileWorkload(ctx, &workload.StatefulSetAdapter{StatefulSet: resource}, nil)
}

// SetupWithManager sets up the controller with the Manager.
func (sr *StatefulSetReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&appsv1.StatefulSet{}).
		WithEventFilter(WorkloadChangedPredicate()).
		Complete(sr)
}
