package dispatch

import (
	"sync"

	"github.com/headwind-sh/headwind/internal/helmrepo"
	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/policy"
	"github.com/headwind-sh/headwind/internal/workload"
)

// Tracked is the dispatcher's view of one managed workload: its policy
// snapshot and tracked slots, kept current by the workload reconcilers.
type Tracked struct {
	Ref    model.WorkloadRef
	Policy policy.Policy
	Slots  []workload.Slot

	// HelmRelease only.
	Chart        string
	ChartRepoURL string
	ChartCreds   *helmrepo.Credentials
}

// Index is the registry of tracked workloads. Reconcilers register on every
// reconcile and deregister on deletion or when the policy annotation goes
// away, so the dispatcher never lists the cluster itself.
type Index struct {
	mu      sync.RWMutex
	tracked map[model.WorkloadRef]Tracked
}

func NewIndex() *Index {
	return &Index{tracked: make(map[model.WorkloadRef]Tracked)}
}

// Register inserts or refreshes a tracked workload.
func (i *Index) Register(t Tracked) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.tracked[t.Ref] = t
}

// Deregister removes a workload from tracking.
func (i *Index) Deregister(ref model.WorkloadRef) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.tracked, ref)
}

// Snapshot returns a copy of the tracked set for iteration without holding
// the lock across network calls.
func (i *Index) Snapshot() []Tracked {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Tracked, 0, len(i.tracked))
	for _, t := range i.tracked {
		out = append(out, t)
	}
	return out
}

// Get returns the tracked entry for a workload.
func (i *Index) Get(ref model.WorkloadRef) (Tracked, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	t, ok := i.tracked[ref]
	return t, ok
}

// Len reports the number of tracked workloads.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.tracked)
}
