/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// UpdatePhase is the lifecycle phase of an UpdateRequest.
type UpdatePhase string

const (
	// UpdatePhasePending means the request awaits approval or apply.
	UpdatePhasePending UpdatePhase = "Pending"
	// UpdatePhaseCompleted means the update was applied and finalized.
	UpdatePhaseCompleted UpdatePhase = "Completed"
	// UpdatePhaseRejected means the request was rejected by an approver.
	UpdatePhaseRejected UpdatePhase = "Rejected"
	// UpdatePhaseFailed means the apply errored or a rollback was executed.
	UpdatePhaseFailed UpdatePhase = "Failed"
)

// IsTerminal reports whether the phase allows no further status changes.
func (p UpdatePhase) IsTerminal() bool {
	switch p {
	case UpdatePhaseCompleted, UpdatePhaseRejected, UpdatePhaseFailed:
		return true
	}
	return false
}

// UpdateType distinguishes container-image updates from Helm chart updates.
type UpdateType string

const (
	UpdateTypeImage     UpdateType = "Image"
	UpdateTypeHelmChart UpdateType = "HelmChart"
)

// TargetRef identifies the workload an UpdateRequest applies to.
type TargetRef struct {
	// Kind is the workload kind (Deployment, StatefulSet, DaemonSet, HelmRelease)
	// +required
	Kind string `json:"kind"`

	// Name of the target workload
	// +required
	Name string `json:"name"`

	// Namespace of the target workload
	// +required
	Namespace string `json:"namespace"`
}

// UpdateRequestSpec defines the desired state of UpdateRequest
type UpdateRequestSpec struct {
	// TargetRef identifies the workload to update
	// +required
	TargetRef TargetRef `json:"targetRef"`

	// UpdateType is Image for container workloads, HelmChart for HelmReleases
	// +optional
	UpdateType UpdateType `json:"updateType,omitempty"`

	// ContainerName is the tracked container slot (container workloads only)
	// +optional
	ContainerName string `json:"containerName,omitempty"`

	// CurrentImage is the image at the time the request was created
	// +optional
	CurrentImage string `json:"currentImage,omitempty"`

	// NewImage is the candidate image to apply
	// +optional
	NewImage string `json:"newImage,omitempty"`

	// CurrentVersion is the deployed chart version (HelmRelease only)
	// +optional
	CurrentVersion string `json:"currentVersion,omitempty"`

	// NewVersion is the candidate chart version (HelmRelease only)
	// +optional
	NewVersion string `json:"newVersion,omitempty"`

	// Policy is the update policy that admitted this candidate
	// +required
	Policy string `json:"policy"`

	// RequireApproval records whether an external approval is needed
	// +optional
	RequireApproval bool `json:"requireApproval,omitempty"`

	// Reason is a human-readable explanation for the request
	// +optional
	Reason string `json:"reason,omitempty"`
}

// UpdateRequestStatus defines the observed state of UpdateRequest
type UpdateRequestStatus struct {
	// Phase of the request lifecycle
	// +optional
	Phase UpdatePhase `json:"phase,omitempty"`

	// CreatedAt is when the controller created the request
	// +optional
	CreatedAt *metav1.Time `json:"createdAt,omitempty"`

	// LastUpdated is when the status last changed
	// +optional
	LastUpdated *metav1.Time `json:"lastUpdated,omitempty"`

	// ApprovedBy is the approver identity, if approved
	// +optional
	ApprovedBy string `json:"approvedBy,omitempty"`

	// ApprovedAt is when approval was recorded
	// +optional
	ApprovedAt *metav1.Time `json:"approvedAt,omitempty"`

	// RejectedBy is the rejecting identity, if rejected
	// +optional
	RejectedBy string `json:"rejectedBy,omitempty"`

	// RejectedAt is when the rejection was recorded
	// +optional
	RejectedAt *metav1.Time `json:"rejectedAt,omitempty"`

	// RejectionReason is the free-text reason given on rejection
	// +optional
	RejectionReason string `json:"rejectionReason,omitempty"`

	// Message records apply errors and rollback outcomes
	// +optional
	Message string `json:"message,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Target",type=string,JSONPath=`.spec.targetRef.name`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// UpdateRequest is the Schema for the updaterequests API.
// One UpdateRequest records a single proposed image or chart-version change
// for one workload slot, from creation through approval and apply to a
// terminal Completed, Rejected, or Failed phase.
type UpdateRequest struct {
	metav1.TypeMeta `json:",inline"`

	// metadata is a standard object metadata
	// +optional
	metav1.ObjectMeta `json:"metadata,omitzero"`

	// spec defines the desired state of UpdateRequest
	// +required
	Spec UpdateRequestSpec `json:"spec"`

	// status holds the observed lifecycle state
	// +optional
	Status UpdateRequestStatus `json:"status,omitzero"`
}

// +kubebuilder:object:root=true

// UpdateRequestList contains a list of UpdateRequest
type UpdateRequestList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitzero"`
	Items           []UpdateRequest `json:"items"`
}

func init() {
	SchemeBuilder.Register(&UpdateRequest{}, &UpdateRequestList{})
}
