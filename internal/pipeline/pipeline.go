package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	headwindv1alpha1 "github.com/headwind-sh/headwind/api/v1alpha1"
	"github.com/headwind-sh/headwind/internal/health"
	"github.com/headwind-sh/headwind/internal/history"
	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/policy"
	"github.com/headwind-sh/headwind/internal/workload"
)

const (
	// writeTimeout bounds every orchestrator write.
	writeTimeout = 10 * time.Second

	// applyRetries is how many compare-and-set attempts an apply gets.
	applyRetries = 3
)

// inflightPhase tracks where an in-flight update sits between proposal
// acceptance and finalization. These sub-states are in-memory only; the
// persisted URQ phase stays Pending throughout.
type inflightPhase string

const (
	inflightPending  inflightPhase = "pending"
	inflightApplying inflightPhase = "applying"
	inflightWatching inflightPhase = "watching"
)

type inflightEntry struct {
	urqName string
	phase   inflightPhase
	cancel  context.CancelFunc
}

// Pipeline owns the UpdateRequest lifecycle: proposal admission, approval,
// compare-and-set apply, post-apply health watching, and rollback. It
// serializes work per (workload, slot) through the inflight set.
type Pipeline struct {
	client  client.Client
	watcher health.Watcher
	events  chan<- model.UpdateEvent
	source  model.SourceMetadata

	mu       sync.Mutex
	inflight map[string]*inflightEntry

	// now is swappable for tests.
	now func() time.Time
}

// New builds a Pipeline. watcher may be nil to disable health watching
// entirely (auto-rollback policies then finalize immediately after apply).
func New(c client.Client, watcher health.Watcher, events chan<- model.UpdateEvent, source model.SourceMetadata) *Pipeline {
	return &Pipeline{
		client:   c,
		watcher:  watcher,
		events:   events,
		source:   source,
		inflight: make(map[string]*inflightEntry),
		now:      time.Now,
	}
}

func inflightKey(ref model.WorkloadRef, slot string) string {
	return ref.String() + "/" + slot
}

// Propose runs a candidate proposal through admission: policy, at-most-one
// in-flight per slot, and the minimum update interval. Accepted proposals
// materialize as a Pending UpdateRequest; auto-approval follows immediately
// when the policy does not require approval.
func (p *Pipeline) Propose(ctx context.Context, prop model.CandidateProposal) error {
	logger := log.FromContext(ctx).WithValues("workload", prop.Workload.String(), "slot", prop.Slot)

	if prop.Candidate == prop.Current {
		return nil
	}

	adapter, err := workload.Load(ctx, p.client, prop.Workload)
	if err != nil {
		return fmt.Errorf("loading workload %s: %w", prop.Workload, err)
	}
	pol, managed := policy.FromAnnotations(adapter.Annotations())
	if !managed || pol.Kind == policy.KindNone {
		return nil
	}

	currentValue, ok := adapter.CurrentForSlot(prop.Slot)
	if !ok {
		return fmt.Errorf("slot %q not found on %s", prop.Slot, prop.Workload)
	}

	curVer, candVer := versionPair(prop.Workload.Kind, currentValue, prop.Candidate)
	admitted, reason := pol.Admit(curVer, candVer)
	if !admitted {
		logger.V(1).Info("Candidate not admissible", "candidate", prop.Candidate, "reason", reason)
		return nil
	}

	key := inflightKey(prop.Workload, prop.Slot)
	p.mu.Lock()
	if _, exists := p.inflight[key]; exists {
		p.mu.Unlock()
		logger.V(1).Info("Update already in flight, dropping proposal", "candidate", prop.Candidate)
		return nil
	}
	entry := &inflightEntry{phase: inflightPending}
	p.inflight[key] = entry
	p.updatePendingGaugeLocked()
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		delete(p.inflight, key)
		p.updatePendingGaugeLocked()
		p.mu.Unlock()
	}

	if last, ok := lastUpdateFor(adapter, prop.Slot); ok {
		if elapsed := p.now().Sub(last); elapsed < pol.MinUpdateInterval {
			metrics.UpdatesSkippedInterval.Inc()
			logger.Info("Minimum update interval not elapsed, skipping",
				"elapsed", elapsed, "minInterval", pol.MinUpdateInterval)
			release()
			return nil
		}
	}

	urq := p.newUpdateRequest(prop, adapter, pol, currentValue)
	createCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.client.Create(createCtx, urq); err != nil {
		release()
		return fmt.Errorf("creating UpdateRequest: %w", err)
	}

	urq.Status = headwindv1alpha1.UpdateRequestStatus{
		Phase:       headwindv1alpha1.UpdatePhasePending,
		CreatedAt:   p.metaNow(),
		LastUpdated: p.metaNow(),
	}
	if err := p.updateStatus(ctx, urq); err != nil {
		logger.Error(err, "failed to initialize UpdateRequest status", "updateRequest", urq.Name)
	}

	p.mu.Lock()
	entry.urqName = urq.Name
	p.mu.Unlock()

	logger.Info("UpdateRequest created",
		"updateRequest", urq.Name,
		"current", currentValue,
		"candidate", prop.Candidate,
		"requireApproval", pol.RequireApproval)

	event := p.newEvent(model.EventUpdateRequestCreated, urq)
	event.Policy = string(pol.Kind)
	event.RequiresApproval = pol.RequireApproval
	p.emit(ctx, event)

	if !pol.RequireApproval {
		_, err := p.Approve(ctx, urq.Namespace, urq.Name, string(prop.Origin))
		return err
	}
	return nil
}

// versionPair extracts the comparable version strings for a slot: chart
// versions compare as-is, image references compare by tag.
func versionPair(kind model.WorkloadKind, current, candidate string) (string, string) {
	if kind == model.KindHelmRelease {
		return current, candidate
	}
	_, curTag := model.SplitImage(current)
	_, candTag := model.SplitImage(candidate)
	return curTag, candTag
}

// lastUpdateFor returns the most recent apply time for the slot, preferring
// the per-slot ledger over the workload-level last-update annotation.
func lastUpdateFor(adapter workload.Adapter, slot string) (time.Time, bool) {
	if entries, err := history.Load(adapter.Annotations()); err == nil {
		if last, ok := history.LastForSlot(entries, slot); ok {
			return last.Timestamp, true
		}
	}
	if raw, ok := adapter.Annotations()[policy.AnnotationLastUpdate]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (p *Pipeline) newUpdateRequest(prop model.CandidateProposal, adapter workload.Adapter, pol policy.Policy, currentValue string) *headwindv1alpha1.UpdateRequest {
	spec := headwindv1alpha1.UpdateRequestSpec{
		TargetRef: headwindv1alpha1.TargetRef{
			Kind:      string(prop.Workload.Kind),
			Name:      prop.Workload.Name,
			Namespace: prop.Workload.Namespace,
		},
		Policy:          string(pol.Kind),
		RequireApproval: pol.RequireApproval,
	}

	if prop.Workload.Kind == model.KindHelmRelease {
		spec.UpdateType = headwindv1alpha1.UpdateTypeHelmChart
		spec.CurrentVersion = currentValue
		spec.NewVersion = prop.Candidate
		spec.Reason = fmt.Sprintf("New chart version %s available", prop.Candidate)
	} else {
		spec.UpdateType = headwindv1alpha1.UpdateTypeImage
		spec.ContainerName = prop.Slot
		spec.CurrentImage = currentValue
		spec.NewImage = prop.Candidate
		_, tag := model.SplitImage(prop.Candidate)
		spec.Reason = fmt.Sprintf("New version %s available", tag)
	}

	// The slot keeps names unique when several containers of one workload
	// propose within the same second.
	return &headwindv1alpha1.UpdateRequest{
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s-%s-%d", prop.Workload.Name, prop.Slot, p.now().Unix()),
			Namespace: prop.Workload.Namespace,
		},
		Spec: spec,
	}
}

// Approve records approval on a Pending UpdateRequest and executes the
// apply. Approval is idempotent: terminal requests return their existing
// status unchanged, and a request already being applied is not applied
// twice.
func (p *Pipeline) Approve(ctx context.Context, namespace, name, approver string) (*headwindv1alpha1.UpdateRequest, error) {
	urq := &headwindv1alpha1.UpdateRequest{}
	if err := p.client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, urq); err != nil {
		return nil, err
	}

	if urq.Status.Phase.IsTerminal() {
		return urq, nil
	}

	if urq.Status.ApprovedBy == "" {
		urq.Status.ApprovedBy = approver
		urq.Status.ApprovedAt = p.metaNow()
		urq.Status.LastUpdated = p.metaNow()
		if urq.Status.Phase == "" {
			urq.Status.Phase = headwindv1alpha1.UpdatePhasePending
		}
		if err := p.updateStatus(ctx, urq); err != nil {
			return nil, fmt.Errorf("recording approval: %w", err)
		}
		metrics.UpdatesApproved.Inc()

		event := p.newEvent(model.EventUpdateApproved, urq)
		event.Actor = approver
		p.emit(ctx, event)
	}

	ref, slot, err := targetOf(urq)
	if err != nil {
		return urq, err
	}

	key := inflightKey(ref, slot)
	p.mu.Lock()
	entry, exists := p.inflight[key]
	if !exists {
		// Rehydration path: the entry was lost with the previous process.
		entry = &inflightEntry{urqName: urq.Name, phase: inflightPending}
		p.inflight[key] = entry
		p.updatePendingGaugeLocked()
	}
	if entry.urqName != urq.Name || entry.phase != inflightPending {
		p.mu.Unlock()
		return urq, nil
	}
	entry.phase = inflightApplying
	p.mu.Unlock()

	return p.executeApply(ctx, urq, ref, slot, approver)
}

// Reject marks a Pending UpdateRequest as rejected. Rejecting a request in
// any other phase is an error.
func (p *Pipeline) Reject(ctx context.Context, namespace, name, approver, reason string) (*headwindv1alpha1.UpdateRequest, error) {
	urq := &headwindv1alpha1.UpdateRequest{}
	if err := p.client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, urq); err != nil {
		return nil, err
	}

	if urq.Status.Phase != headwindv1alpha1.UpdatePhasePending {
		return nil, fmt.Errorf("cannot reject UpdateRequest %s/%s in phase %q", namespace, name, urq.Status.Phase)
	}

	urq.Status.Phase = headwindv1alpha1.UpdatePhaseRejected
	urq.Status.RejectedBy = approver
	urq.Status.RejectedAt = p.metaNow()
	urq.Status.RejectionReason = reason
	urq.Status.LastUpdated = p.metaNow()
	if err := p.updateStatus(ctx, urq); err != nil {
		return nil, fmt.Errorf("recording rejection: %w", err)
	}

	metrics.UpdatesRejected.Inc()
	p.removeInflightForURQ(urq)

	event := p.newEvent(model.EventUpdateRejected, urq)
	event.Actor = approver
	event.Cause = reason
	p.emit(ctx, event)

	return urq, nil
}

// EnsureTracked reinstates the inflight entry for a non-terminal
// UpdateRequest. The UpdateRequest reconciler calls this during its initial
// sync so restarts reconstruct the inflight set from persisted state.
func (p *Pipeline) EnsureTracked(urq *headwindv1alpha1.UpdateRequest) {
	if urq.Status.Phase.IsTerminal() {
		return
	}
	ref, slot, err := targetOf(urq)
	if err != nil {
		return
	}
	key := inflightKey(ref, slot)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.inflight[key]; !exists {
		p.inflight[key] = &inflightEntry{urqName: urq.Name, phase: inflightPending}
		p.updatePendingGaugeLocked()
	}
}

// HandleDeleted releases the inflight entry of a deleted UpdateRequest and
// cancels its health monitor. The applied change, if any, stays: deletion
// while Pending is best-effort cancellation, not an undo.
func (p *Pipeline) HandleDeleted(namespace, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, entry := range p.inflight {
		if entry.urqName == name {
			if entry.cancel != nil {
				entry.cancel()
			}
			delete(p.inflight, key)
			p.updatePendingGaugeLocked()
			return
		}
	}
	_ = namespace
}

// InflightCount reports the number of in-flight updates.
func (p *Pipeline) InflightCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

func (p *Pipeline) removeInflightForURQ(urq *headwindv1alpha1.UpdateRequest) {
	ref, slot, err := targetOf(urq)
	if err != nil {
		return
	}
	key := inflightKey(ref, slot)
	p.mu.Lock()
	if entry, ok := p.inflight[key]; ok && entry.urqName == urq.Name {
		if entry.cancel != nil {
			entry.cancel()
		}
		delete(p.inflight, key)
		p.updatePendingGaugeLocked()
	}
	p.mu.Unlock()
}

// updatePendingGaugeLocked mirrors the inflight set size into the
// updates_pending gauge. Callers hold p.mu.
func (p *Pipeline) updatePendingGaugeLocked() {
	metrics.UpdatesPending.Set(float64(len(p.inflight)))
}

func targetOf(urq *headwindv1alpha1.UpdateRequest) (model.WorkloadRef, string, error) {
	kind, err := workload.ParseKind(urq.Spec.TargetRef.Kind)
	if err != nil {
		return model.WorkloadRef{}, "", err
	}
	ref := model.WorkloadRef{Kind: kind, Namespace: urq.Spec.TargetRef.Namespace, Name: urq.Spec.TargetRef.Name}

	slot := urq.Spec.ContainerName
	if kind == model.KindHelmRelease {
		slot = workload.ChartSlot
	}
	return ref, slot, nil
}

func (p *Pipeline) metaNow() *metav1.Time {
	t := metav1.NewTime(p.now().UTC())
	return &t
}

func (p *Pipeline) updateStatus(ctx context.Context, urq *headwindv1alpha1.UpdateRequest) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return p.client.Status().Update(ctx, urq)
}

func (p *Pipeline) newEvent(t model.EventType, urq *headwindv1alpha1.UpdateRequest) model.UpdateEvent {
	kind, _ := workload.ParseKind(urq.Spec.TargetRef.Kind)
	ref := model.WorkloadRef{Kind: kind, Namespace: urq.Spec.TargetRef.Namespace, Name: urq.Spec.TargetRef.Name}

	from, to := urq.Spec.CurrentImage, urq.Spec.NewImage
	if urq.Spec.UpdateType == headwindv1alpha1.UpdateTypeHelmChart {
		from, to = urq.Spec.CurrentVersion, urq.Spec.NewVersion
	}

	event := model.NewUpdateEvent(t, ref, urq.Spec.ContainerName, from, to, p.source)
	event.Policy = urq.Spec.Policy
	event.RequiresApproval = urq.Spec.RequireApproval
	event.UpdateRequestName = urq.Name
	return event
}

// emit hands an event to the notification queue without ever blocking the
// pipeline. A full queue drops the event and counts it as a failed
// delivery.
func (p *Pipeline) emit(ctx context.Context, event model.UpdateEvent) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- event:
	default:
		metrics.NotificationsFailed.Inc()
		log.FromContext(ctx).Info("notification queue full, dropping event",
			"event", event.Type, "workload", event.Workload.String())
	}
}

// failURQ moves a request to Failed with a message. Terminal-phase
// immutability is enforced here so late monitor verdicts cannot overwrite
// an already-terminal request.
func (p *Pipeline) failURQ(ctx context.Context, urq *headwindv1alpha1.UpdateRequest, message string) {
	logger := log.FromContext(ctx)

	if err := p.client.Get(ctx, types.NamespacedName{Namespace: urq.Namespace, Name: urq.Name}, urq); err != nil {
		if !apierrors.IsNotFound(err) {
			logger.Error(err, "failed to re-read UpdateRequest before failing it", "updateRequest", urq.Name)
		}
		return
	}
	if urq.Status.Phase.IsTerminal() {
		return
	}

	urq.Status.Phase = headwindv1alpha1.UpdatePhaseFailed
	urq.Status.Message = message
	urq.Status.LastUpdated = p.metaNow()
	if err := p.updateStatus(ctx, urq); err != nil {
		logger.Error(err, "failed to mark UpdateRequest as failed", "updateRequest", urq.Name)
	}

	metrics.UpdatesFailed.WithLabelValues(urq.Spec.TargetRef.Kind).Inc()
	p.removeInflightForURQ(urq)

	event := p.newEvent(model.EventUpdateFailed, urq)
	event.Cause = message
	p.emit(ctx, event)
}

// completeURQ finalizes a successfully applied request.
func (p *Pipeline) completeURQ(ctx context.Context, urq *headwindv1alpha1.UpdateRequest) {
	logger := log.FromContext(ctx)

	if err := p.client.Get(ctx, types.NamespacedName{Namespace: urq.Namespace, Name: urq.Name}, urq); err != nil {
		if !apierrors.IsNotFound(err) {
			logger.Error(err, "failed to re-read UpdateRequest before completing it", "updateRequest", urq.Name)
		}
		return
	}
	if urq.Status.Phase.IsTerminal() {
		return
	}

	urq.Status.Phase = headwindv1alpha1.UpdatePhaseCompleted
	urq.Status.LastUpdated = p.metaNow()
	if err := p.updateStatus(ctx, urq); err != nil {
		logger.Error(err, "failed to mark UpdateRequest as completed", "updateRequest", urq.Name)
		return
	}

	p.removeInflightForURQ(urq)

	p.emit(ctx, p.newEvent(model.EventUpdateCompleted, urq))
	logger.Info("Update completed", "updateRequest", urq.Name)
}
