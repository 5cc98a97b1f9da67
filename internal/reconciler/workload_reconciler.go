package reconciler

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/headwind-sh/headwind/internal/dispatch"
	"github.com/headwind-sh/headwind/internal/filter"
	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/policy"
	"github.com/headwind-sh/headwind/internal/workload"
)

// WorkloadReconciler contains the shared reconciliation logic for all
// managed workload kinds: parse the headwind annotations and keep the
// dispatcher's tracked-workload index current. Discovery and apply happen
// elsewhere; this reconciler only maintains the index.
type WorkloadReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder
	Index    *dispatch.Index
	Filter   *filter.WorkloadFilter
}

func NewWorkloadReconciler(c client.Client, scheme *runtime.Scheme, recorder record.EventRecorder, index *dispatch.Index, f *filter.WorkloadFilter) *WorkloadReconciler {
	return &WorkloadReconciler{
		Client:   c,
		Scheme:   scheme,
		Recorder: recorder,
		Index:    index,
		Filter:   f,
	}
}

// ReconcileWorkload registers or deregisters a workload with the
// dispatcher based on its current annotations. enrich, when non-nil, lets
// a kind-specific reconciler decorate the tracked entry before
// registration (the HelmRelease reconciler resolves its chart repository
// there).
func (wr *WorkloadReconciler) ReconcileWorkload(ctx context.Context, adapter workload.Adapter, enrich func(context.Context, *dispatch.Tracked)) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)
	timer := prometheus.NewTimer(metrics.ReconcileDuration)
	defer timer.ObserveDuration()

	ref := adapter.Ref()

	if wr.Filter != nil && !wr.Filter.Allows(ref.Namespace, adapter.Labels()) {
		wr.Index.Deregister(ref)
		return ctrl.Result{}, nil
	}

	pol, managed := policy.FromAnnotations(adapter.Annotations())
	if !managed || pol.Kind == policy.KindNone {
		wr.Index.Deregister(ref)
		return ctrl.Result{}, nil
	}

	slots := adapter.Slots()
	if len(slots) == 0 {
		log.Info("Workload has no tracked slots, skipping", "workload", ref.String())
		wr.Index.Deregister(ref)
		return ctrl.Result{}, nil
	}

	tracked := dispatch.Tracked{
		Ref:    ref,
		Policy: pol,
		Slots:  slots,
	}
	if enrich != nil {
		enrich(ctx, &tracked)
	}
	wr.Index.Register(tracked)

	log.V(1).Info("Workload tracked",
		"workload", ref.String(),
		"policy", pol.Kind,
		"eventSource", pol.EventSource,
		"slots", len(slots),
	)
	return ctrl.Result{}, nil
}

// HandleDeletion drops a deleted workload from the index.
func (wr *WorkloadReconciler) HandleDeletion(ctx context.Context, ref model.WorkloadRef) {
	ctrl.LoggerFrom(ctx).Info("Workload deleted, dropping from index", "workload", ref.String())
	wr.Index.Deregister(ref)
}
