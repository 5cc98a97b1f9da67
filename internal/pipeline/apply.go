package pipeline

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/log"

	headwindv1alpha1 "github.com/headwind-sh/headwind/api/v1alpha1"
	"github.com/headwind-sh/headwind/internal/health"
	"github.com/headwind-sh/headwind/internal/history"
	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/policy"
	"github.com/headwind-sh/headwind/internal/workload"
)

// executeApply mutates the workload for an approved UpdateRequest and then
// either finalizes it or hands it to the health monitor. The caller has
// already claimed the inflight entry.
func (p *Pipeline) executeApply(ctx context.Context, urq *headwindv1alpha1.UpdateRequest, ref model.WorkloadRef, slot, approver string) (*headwindv1alpha1.UpdateRequest, error) {
	logger := log.FromContext(ctx).WithValues("updateRequest", urq.Name, "workload", ref.String(), "slot", slot)

	newValue := urq.Spec.NewImage
	if urq.Spec.UpdateType == headwindv1alpha1.UpdateTypeHelmChart {
		newValue = urq.Spec.NewVersion
	}

	adapter, err := p.applySlot(ctx, ref, slot, newValue, approver, urq.Name, false)
	if err != nil {
		logger.Error(err, "apply failed")
		p.failURQ(ctx, urq, fmt.Sprintf("apply failed: %v", err))
		return urq, nil
	}

	metrics.UpdatesApplied.WithLabelValues(string(ref.Kind)).Inc()
	logger.Info("Apply succeeded", "new", newValue)

	pol, _ := policy.FromAnnotations(adapter.Annotations())
	if !pol.AutoRollback || p.watcher == nil {
		p.completeURQ(ctx, urq)
		return urq, nil
	}

	selector, err := adapter.Selector()
	if err != nil {
		logger.Error(err, "failed to build pod selector, finalizing without health watch")
		p.completeURQ(ctx, urq)
		return urq, nil
	}

	// The watch must outlive the request that triggered the approval, so
	// it runs on its own cancelable context. Cancellation comes from URQ
	// deletion or controller shutdown; a canceled watch leaves the request
	// Pending for the next reconcile to resume.
	watchCtx, cancel := context.WithCancel(context.Background())
	key := inflightKey(ref, slot)
	p.mu.Lock()
	if entry, ok := p.inflight[key]; ok {
		entry.phase = inflightWatching
		entry.cancel = cancel
	}
	p.mu.Unlock()

	newImage := ""
	if urq.Spec.UpdateType != headwindv1alpha1.UpdateTypeHelmChart {
		newImage = newValue
	}
	spec := health.WatchSpec{
		Ref:                  ref,
		Selector:             selector,
		NewImage:             newImage,
		Timeout:              pol.RollbackTimeout,
		MaxReadinessFailures: pol.HealthCheckRetries,
	}

	watched := urq.DeepCopy()
	go func() {
		defer cancel()
		reason, err := p.watcher.Watch(watchCtx, spec)
		if err != nil {
			// Canceled: shutdown or URQ deletion. No verdict, no undo.
			return
		}
		if reason == "" {
			p.completeURQ(watchCtx, watched)
			return
		}
		p.rollbackAndFail(context.Background(), watched, ref, slot, reason)
	}()

	return urq, nil
}

// applySlot performs the compare-and-set mutation: set the slot's
// image/version, stamp last-update, and append the history entry — all in
// one write against the workload's resource version, retried on conflict.
func (p *Pipeline) applySlot(ctx context.Context, ref model.WorkloadRef, slot, value, actor, urqName string, rollback bool) (workload.Adapter, error) {
	logger := log.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt < applyRetries; attempt++ {
		adapter, err := workload.Load(ctx, p.client, ref)
		if err != nil {
			return nil, err
		}
		if _, ok := adapter.CurrentForSlot(slot); !ok {
			return nil, fmt.Errorf("slot %q not found on %s", slot, ref)
		}
		if err := adapter.SetSlot(slot, value); err != nil {
			return nil, err
		}

		entries, err := history.Load(adapter.Annotations())
		if err != nil {
			// A corrupt ledger is reset rather than blocking updates.
			logger.Error(err, "resetting corrupt update history", "workload", ref.String())
			entries = nil
		}
		now := p.now().UTC()
		entries = history.Append(entries, history.Entry{
			Slot:              slot,
			Image:             value,
			UpdateRequestName: urqName,
			ApprovedBy:        actor,
			Rollback:          rollback,
		}, now)
		raw, err := history.Marshal(entries)
		if err != nil {
			return nil, err
		}
		adapter.SetAnnotation(policy.AnnotationLastUpdate, now.Format(time.RFC3339))
		adapter.SetAnnotation(policy.AnnotationUpdateHistory, raw)

		updateCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = p.client.Update(updateCtx, adapter.Object())
		cancel()
		if err == nil {
			return adapter, nil
		}
		if !apierrors.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		logger.V(1).Info("conflict applying update, retrying", "workload", ref.String(), "attempt", attempt+1)
	}
	return nil, fmt.Errorf("conflict retries exhausted: %w", lastErr)
}

// rollbackAndFail reverts the slot to the ledger's previous entry and moves
// the originating UpdateRequest to Failed.
func (p *Pipeline) rollbackAndFail(ctx context.Context, urq *headwindv1alpha1.UpdateRequest, ref model.WorkloadRef, slot, cause string) {
	err := p.Rollback(ctx, ref, slot, cause, false)
	if err != nil {
		p.failURQ(ctx, urq, fmt.Sprintf("rollback after %s failed: %v", cause, err))
		return
	}
	p.failURQ(ctx, urq, fmt.Sprintf("rolled back: %s", cause))
}

// Rollback reverts a slot to the entry preceding the newest ledger entry.
// manual distinguishes API-triggered rollbacks from health-monitor ones in
// metrics. The revert is an ordinary compare-and-set apply that appends a
// rollback-tagged history entry.
func (p *Pipeline) Rollback(ctx context.Context, ref model.WorkloadRef, slot, cause string, manual bool) error {
	logger := log.FromContext(ctx).WithValues("workload", ref.String(), "slot", slot)

	adapter, err := workload.Load(ctx, p.client, ref)
	if err != nil {
		return fmt.Errorf("loading workload for rollback: %w", err)
	}
	entries, err := history.Load(adapter.Annotations())
	if err != nil {
		return fmt.Errorf("reading history for rollback: %w", err)
	}
	target, ok := history.Previous(entries, slot)
	if !ok {
		return fmt.Errorf("no rollback target in history for slot %q", slot)
	}
	current, _ := adapter.CurrentForSlot(slot)

	event := model.NewUpdateEvent(model.EventRollbackTriggered, ref, slot, current, target.Image, p.source)
	event.Cause = cause
	p.emit(ctx, event)

	logger.Info("Rolling back", "from", current, "to", target.Image, "cause", cause, "manual", manual)

	if _, err := p.applySlot(ctx, ref, slot, target.Image, "headwind", "", true); err != nil {
		metrics.RollbacksFailed.Inc()
		failed := model.NewUpdateEvent(model.EventRollbackFailed, ref, slot, current, target.Image, p.source)
		failed.Cause = err.Error()
		p.emit(ctx, failed)
		return fmt.Errorf("rollback apply failed: %w", err)
	}

	metrics.RollbacksTotal.WithLabelValues(string(ref.Kind)).Inc()
	if manual {
		metrics.RollbacksManual.Inc()
	} else {
		metrics.RollbacksAutomatic.Inc()
	}

	completed := model.NewUpdateEvent(model.EventRollbackCompleted, ref, slot, current, target.Image, p.source)
	completed.Cause = cause
	p.emit(ctx, completed)
	return nil
}
