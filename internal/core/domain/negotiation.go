package domain

import "fmt"

// NegotiationState is the endpoint-side state of one peer connection negotiation.
// The relay never consults it; clients and scenario tests follow it.
type NegotiationState string

const (
	NegotiationIdle           NegotiationState = "IDLE"
	NegotiationOfferSent      NegotiationState = "OFFER_SENT"
	NegotiationOfferReceived  NegotiationState = "OFFER_RECEIVED"
	NegotiationAnswerSent     NegotiationState = "ANSWER_SENT"
	NegotiationAnswerReceived NegotiationState = "ANSWER_RECEIVED"
	NegotiationICE            NegotiationState = "ICE_NEGOTIATING"
	NegotiationConnected      NegotiationState = "CONNECTED"
	NegotiationEnded          NegotiationState = "ENDED"
	NegotiationFailed         NegotiationState = "FAILED"
)

// NegotiationEvent is something an endpoint does or observes.
type NegotiationEvent string

const (
	NegSendOffer     NegotiationEvent = "send-offer"
	NegReceiveOffer  NegotiationEvent = "receive-offer"
	NegSendAnswer    NegotiationEvent = "send-answer"
	NegReceiveAnswer NegotiationEvent = "receive-answer"
	NegICECandidate  NegotiationEvent = "ice-candidate"
	NegICEConnected  NegotiationEvent = "ice-connected"
	NegICEFailed     NegotiationEvent = "ice-failed"
	NegHangUp        NegotiationEvent = "hang-up"
)

var negotiationTransitions = map[NegotiationState]map[NegotiationEvent]NegotiationState{
	NegotiationIdle: {
		NegSendOffer:    NegotiationOfferSent,
		NegReceiveOffer: NegotiationOfferReceived,
	},
	NegotiationOfferSent: {
		NegReceiveAnswer: NegotiationAnswerReceived,
	},
	NegotiationOfferReceived: {
		NegSendAnswer: NegotiationAnswerSent,
	},
	NegotiationAnswerSent: {
		NegICECandidate: NegotiationICE,
		NegICEConnected: NegotiationConnected,
	},
	NegotiationAnswerReceived: {
		NegICECandidate: NegotiationICE,
		NegICEConnected: NegotiationConnected,
	},
	NegotiationICE: {
		NegICECandidate: NegotiationICE,
		NegICEConnected: NegotiationConnected,
	},
	NegotiationConnected: {
		// renegotiation, e.g. toggling screen share
		NegSendOffer:    NegotiationOfferSent,
		NegReceiveOffer: NegotiationOfferReceived,
		NegICECandidate: NegotiationConnected,
	},
}

// NextNegotiationState returns the state reached from s on ev.
// Hang-up ends any live negotiation and ICE failure fails it; both are terminal.
func NextNegotiationState(s NegotiationState, ev NegotiationEvent) (NegotiationState, error) {
	if s.IsTerminal() {
		return s, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, s)
	}
	switch ev {
	case NegHangUp:
		return NegotiationEnded, nil
	case NegICEFailed:
		return NegotiationFailed, nil
	}
	if next, ok := negotiationTransitions[s][ev]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
}

func (s NegotiationState) IsTerminal() bool {
	return s == NegotiationEnded || s == NegotiationFailed
}
