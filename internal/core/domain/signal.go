package domain

import "encoding/json"

// SignalKind classifies a relayed negotiation message.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
	SignalScreenShare  SignalKind = "screen-share-signal"
)

// SignalEnvelope is one point-to-point negotiation message. Payload is never inspected.
type SignalEnvelope struct {
	Kind     SignalKind
	SenderID ParticipantID
	TargetID ParticipantID
	Payload  json.RawMessage
}

// OutboundFrame returns the event type and payload delivered to the target.
func (e SignalEnvelope) OutboundFrame(senderName string) (EventType, any) {
	switch e.Kind {
	case SignalOffer:
		return EventCallMade, CallMadePayload{SenderID: e.SenderID, DisplayName: senderName, SDPOffer: e.Payload}
	case SignalAnswer:
		return EventAnswerMade, AnswerMadePayload{SenderID: e.SenderID, DisplayName: senderName, SDPAnswer: e.Payload}
	case SignalICECandidate:
		return EventICECandidate, ICECandidateRelayPayload{SenderID: e.SenderID, Candidate: e.Payload}
	default:
		return EventScreenSharingSignal, ScreenSharingSignalPayload{SenderID: e.SenderID, Signal: e.Payload}
	}
}
