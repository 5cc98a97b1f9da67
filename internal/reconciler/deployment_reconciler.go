package reconciler

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/workload"
)

// DeploymentReconciler keeps Deployments in the tracked-workload index.
type DeploymentReconciler struct {
	*WorkloadReconciler
}

func NewDeploymentReconciler(wr *WorkloadReconciler) *DeploymentReconciler {
	return &DeploymentReconciler{WorkloadReconciler: wr}
}

// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=apps,resources=deployments/status,verbs=get
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch

func (dr *DeploymentReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	resource := &appsv1.Deployment{}
	if err := dr.Get(ctx, req.NamespacedName, resource); err != nil {
		if apierrors.IsNotFound(err) {
			dr.HandleDeletion(ctx, model.WorkloadRef{Kind: model.KindDeployment, Namespace: req.Namespace, Name: req.Name})
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	return dr.ReconcileWorkload(ctx, &workload.DeploymentAdapter{Deployment: resource}, nil)
}

// SetupWithManager sets up the controller with the Manager.
func (dr *DeploymentReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&appsv1.Deployment{}).
		WithEventFilter(WorkloadChangedPredicate()).
		Complete(dr)
}
