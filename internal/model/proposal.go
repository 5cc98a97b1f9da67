package model

import "time"

// Origin identifies which discovery path produced a proposal.
type Origin string

const (
	OriginWebhook Origin = "webhook"
	OriginPolling Origin = "polling"
)

// WorkloadKind enumerates the managed workload kinds.
type WorkloadKind string

const (
	KindDeployment  WorkloadKind = "Deployment"
	KindStatefulSet WorkloadKind = "StatefulSet"
	KindDaemonSet   WorkloadKind = "DaemonSet"
	KindHelmRelease WorkloadKind = "HelmRelease"
)

// WorkloadRef identifies a managed workload.
type WorkloadRef struct {
	Kind      WorkloadKind `json:"kind"`
	Name      string       `json:"name"`
	Namespace string       `json:"namespace"`
}

func (r WorkloadRef) String() string {
	return string(r.Kind) + "/" + r.Namespace + "/" + r.Name
}

// CandidateProposal is an in-memory record of a possibly-newer version
// observed for one slot. Proposals are ephemeral; only accepted ones
// materialize as UpdateRequests.
type CandidateProposal struct {
	Workload   WorkloadRef
	Slot       string
	Current    string
	Candidate  string
	Origin     Origin
	ObservedAt time.Time
}

// Key identifies the coalescing bucket: newer proposals for the same
// (workload, slot) replace pending ones.
func (p CandidateProposal) Key() string {
	return p.Workload.String() + "/" + p.Slot
}
