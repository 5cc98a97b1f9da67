package reconciler

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/workload"
)

// DaemonSetReconciler keeps DaemonSets in the tracked-workload index.
type DaemonSetReconciler struct {
	*WorkloadReconciler
}

func NewDaemonSetReconciler(wr *WorkloadReconciler) *DaemonSetReconciler {
	return &DaemonSetReconciler{WorkloadReconciler: wr}
}

// +kubebuilder:rbac:groups=apps,resources=daemonsets,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=apps,resources=daemonsets/status,verbs=get

func (dr *DaemonSetReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	resource := &appsv1.DaemonSet{}
	if err := dr.Get(ctx, req.NamespacedName, resource); err != nil {
		if apierrors.IsNotFound(err) {
			dr.HandleDeletion(ctx, model.WorkloadRef{Kind: model.KindDaemonSet, Namespace: req.Namespace, Name: req.Name})
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	return dr.ReconcileWorkload(ctx, &workload.DaemonSetAdapter{DaemonSet: resource}, nil)
}

// SetupWithManager sets up the controller with the Manager.
func (dr *DaemonSetReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&appsv1.DaemonSet{}).
		WithEventFilter(WorkloadChangedPredicate()).
		Complete(dr)
}
