package domain

import "time"

// LifecycleEventType names a meeting lifecycle change published to other systems.
type LifecycleEventType string

const (
	LifecycleMeetingCreated    LifecycleEventType = "meeting.created"
	LifecycleMeetingEnded      LifecycleEventType = "meeting.ended"
	LifecycleParticipantJoined LifecycleEventType = "participant.joined"
	LifecycleParticipantLeft   LifecycleEventType = "participant.left"
)

type LifecycleEvent struct {
	Type          LifecycleEventType `json:"type"`
	InstanceID    string             `json:"instance_id,omitempty"`
	MeetingID     MeetingID          `json:"meeting_id"`
	ParticipantID ParticipantID      `json:"participant_id,omitempty"`
	ConnectionID  ConnectionID       `json:"connection_id,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}
