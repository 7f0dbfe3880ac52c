package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// EventType names a frame on the signaling channel.
type EventType string

// Client to server.
const (
	EventJoinMeeting          EventType = "join-meeting"
	EventLeaveMeeting         EventType = "leave-meeting"
	EventCallUser             EventType = "call-user"
	EventMakeAnswer           EventType = "make-answer"
	EventICECandidate         EventType = "ice-candidate"
	EventScreenSharingStarted EventType = "screen-sharing-started"
	EventPing                 EventType = "ping"
)

// Server to client.
const (
	EventMeetingJoined       EventType = "meeting-joined"
	EventUserJoined          EventType = "user-joined"
	EventUserLeft            EventType = "user-left"
	EventMeetingError        EventType = "meeting-error"
	EventCallMade            EventType = "call-made"
	EventAnswerMade          EventType = "answer-made"
	EventScreenSharingSignal EventType = "screen-sharing-signal"
	EventDeliveryFailed      EventType = "delivery-failed"
	EventPong                EventType = "pong"
)

// Frame is the envelope used in both directions.
type Frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeFrame renders a frame without HTML escaping so raw payloads are forwarded byte for byte.
func EncodeFrame(eventType EventType, payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		Type    EventType `json:"type"`
		Payload any       `json:"payload,omitempty"`
	}{eventType, payload}); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", eventType, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeFrame parses an inbound frame. The payload is left undecoded.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, err
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("frame type is required")
	}
	return f, nil
}

// Inbound payloads.

type JoinMeetingPayload struct {
	MeetingID     MeetingID     `json:"meetingId"`
	DisplayName   string        `json:"displayName"`
	ParticipantID ParticipantID `json:"participantId,omitempty"`
}

type CallUserPayload struct {
	TargetID ParticipantID   `json:"targetId"`
	SDPOffer json.RawMessage `json:"sdpOffer"`
}

type MakeAnswerPayload struct {
	TargetID  ParticipantID   `json:"targetId"`
	SDPAnswer json.RawMessage `json:"sdpAnswer"`
}

type ICECandidatePayload struct {
	TargetID  ParticipantID   `json:"targetId"`
	Candidate json.RawMessage `json:"candidate"`
}

type ScreenSharingPayload struct {
	TargetID ParticipantID   `json:"targetId"`
	Signal   json.RawMessage `json:"signal"`
}

// Outbound payloads.

type MeetingJoinedPayload struct {
	MeetingID     MeetingID          `json:"meetingId"`
	ParticipantID ParticipantID      `json:"participantId"`
	Members       []MemberInfo       `json:"members"`
	ICEServers    []webrtc.ICEServer `json:"iceServers,omitempty"`
}

type UserJoinedPayload struct {
	MeetingID     MeetingID     `json:"meetingId"`
	ParticipantID ParticipantID `json:"participantId"`
	DisplayName   string        `json:"displayName"`
}

type UserLeftPayload struct {
	MeetingID     MeetingID     `json:"meetingId"`
	ParticipantID ParticipantID `json:"participantId"`
	DisplayName   string        `json:"displayName,omitempty"`
}

type MeetingErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CallMadePayload struct {
	SenderID    ParticipantID   `json:"senderId"`
	DisplayName string          `json:"displayName,omitempty"`
	SDPOffer    json.RawMessage `json:"sdpOffer"`
}

type AnswerMadePayload struct {
	SenderID    ParticipantID   `json:"senderId"`
	DisplayName string          `json:"displayName,omitempty"`
	SDPAnswer   json.RawMessage `json:"sdpAnswer"`
}

type ICECandidateRelayPayload struct {
	SenderID  ParticipantID   `json:"senderId"`
	Candidate json.RawMessage `json:"candidate"`
}

type ScreenSharingSignalPayload struct {
	SenderID ParticipantID   `json:"senderId"`
	Signal   json.RawMessage `json:"signal"`
}

type DeliveryFailedPayload struct {
	TargetID ParticipantID `json:"targetId"`
	Kind     SignalKind    `json:"kind"`
	Code     string        `json:"code"`
}
