package reconciler

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	headwindv1alpha1 "github.com/headwind-sh/headwind/api/v1alpha1"
	"github.com/headwind-sh/headwind/internal/pipeline"
)

// UpdateRequestReconciler drives the UpdateRequest state machine: it
// initializes externally created requests, runs auto-approval, resumes
// approved-but-unapplied requests after a restart, and rehydrates the
// pipeline's inflight set during the initial sync.
type UpdateRequestReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Pipeline *pipeline.Pipeline
}

func NewUpdateRequestReconciler(c client.Client, scheme *runtime.Scheme, p *pipeline.Pipeline) *UpdateRequestReconciler {
	return &UpdateRequestReconciler{Client: c, Scheme: scheme, Pipeline: p}
}

// +kubebuilder:rbac:groups=headwind.sh,resources=updaterequests,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=headwind.sh,resources=updaterequests/status,verbs=get;update;patch

func (ur *UpdateRequestReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)

	urq := &headwindv1alpha1.UpdateRequest{}
	if err := ur.Get(ctx, req.NamespacedName, urq); err != nil {
		if apierrors.IsNotFound(err) {
			// Deletion while in flight is best-effort cancellation: the
			// health monitor stops, the applied change stays.
			ur.Pipeline.HandleDeleted(req.Namespace, req.Name)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if urq.Status.Phase.IsTerminal() {
		return ctrl.Result{}, nil
	}

	if urq.Status.Phase == "" {
		// Externally created request without a status yet.
		now := metav1.Now()
		urq.Status.Phase = headwindv1alpha1.UpdatePhasePending
		urq.Status.CreatedAt = &now
		urq.Status.LastUpdated = &now
		if err := ur.Status().Update(ctx, urq); err != nil {
			return ctrl.Result{}, err
		}
	}

	ur.Pipeline.EnsureTracked(urq)

	switch {
	case !urq.Spec.RequireApproval && urq.Status.ApprovedBy == "":
		// Externally created request with auto-approval semantics.
		if _, err := ur.Pipeline.Approve(ctx, urq.Namespace, urq.Name, "auto"); err != nil {
			log.Error(err, "auto-approval failed", "updateRequest", urq.Name)
			return ctrl.Result{}, err
		}
	case urq.Status.ApprovedBy != "":
		// Approved but still Pending: either mid-apply in this process (a
		// no-op inside the pipeline) or orphaned by a restart and resumed
		// here.
		if _, err := ur.Pipeline.Approve(ctx, urq.Namespace, urq.Name, urq.Status.ApprovedBy); err != nil {
			log.Error(err, "resuming approved request failed", "updateRequest", urq.Name)
			return ctrl.Result{}, err
		}
	}

	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (ur *UpdateRequestReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&headwindv1alpha1.UpdateRequest{}).
		Complete(ur)
}
