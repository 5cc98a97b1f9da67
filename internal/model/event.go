package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType is a pipeline state transition fanned out to notification sinks.
type EventType string

const (
	EventUpdateRequestCreated EventType = "update_request_created"
	EventUpdateApproved       EventType = "update_approved"
	EventUpdateRejected       EventType = "update_rejected"
	EventUpdateCompleted      EventType = "update_completed"
	EventUpdateFailed         EventType = "update_failed"
	EventRollbackTriggered    EventType = "rollback_triggered"
	EventRollbackCompleted    EventType = "rollback_completed"
	EventRollbackFailed       EventType = "rollback_failed"
)

// SourceMetadata identifies the emitting controller instance.
type SourceMetadata struct {
	ClusterID         string `json:"clusterId,omitempty"`
	ControllerVersion string `json:"controllerVersion,omitempty"`
}

// UpdateEvent is one logical notification per pipeline transition.
type UpdateEvent struct {
	EventID           string         `json:"eventId"`
	Type              EventType      `json:"event"`
	Timestamp         time.Time      `json:"timestamp"`
	Source            SourceMetadata `json:"source,omitzero"`
	Workload          WorkloadRef    `json:"workload"`
	Slot              string         `json:"container,omitempty"`
	FromVersion       string         `json:"currentImage,omitempty"`
	ToVersion         string         `json:"newImage,omitempty"`
	Policy            string         `json:"policy,omitempty"`
	RequiresApproval  bool           `json:"requiresApproval"`
	Actor             string         `json:"actor,omitempty"`
	Cause             string         `json:"cause,omitempty"`
	UpdateRequestName string         `json:"updateRequestName,omitempty"`
}

// NewUpdateEvent stamps an event with an ID and the emission time.
func NewUpdateEvent(t EventType, workload WorkloadRef, slot, from, to string, source SourceMetadata) UpdateEvent {
	return UpdateEvent{
		EventID:     uuid.New().String(),
		Type:        t,
		Timestamp:   time.Now().UTC(),
		Source:      source,
		Workload:    workload,
		Slot:        slot,
		FromVersion: from,
		ToVersion:   to,
	}
}
