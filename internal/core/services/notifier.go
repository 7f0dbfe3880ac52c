package services

import (
	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"

	"go.uber.org/zap"
)

// notifier writes frames to the sinks of registered connections.
type notifier struct {
	participants ports.ParticipantRegistry
	meetings     ports.SessionDirectory
	logger       *zap.SugaredLogger
}

func (n *notifier) sendTo(connID domain.ConnectionID, eventType domain.EventType, payload any) error {
	sink, ok := n.participants.Sink(connID)
	if !ok {
		return domain.ErrParticipantNotFound
	}
	frame, err := domain.EncodeFrame(eventType, payload)
	if err != nil {
		return err
	}
	return sink.Send(frame)
}

// broadcast sends one frame to every member of meetingID except the given participant and
// returns how many sinks accepted it.
func (n *notifier) broadcast(meetingID domain.MeetingID, except domain.ParticipantID, eventType domain.EventType, payload any) int {
	members := n.meetings.ListMembers(meetingID)
	if len(members) == 0 {
		return 0
	}
	frame, err := domain.EncodeFrame(eventType, payload)
	if err != nil {
		n.logger.Errorw("failed to encode broadcast", "type", eventType, "error", err)
		return 0
	}

	delivered := 0
	for _, member := range members {
		if member.ParticipantID == except {
			continue
		}
		p, ok := n.participants.ByParticipant(member.ParticipantID)
		if !ok {
			continue
		}
		sink, ok := n.participants.Sink(p.ConnectionID)
		if !ok {
			continue
		}
		if err := sink.Send(frame); err != nil {
			n.logger.Warnw("broadcast delivery failed",
				"type", eventType,
				"meeting_id", meetingID,
				"participant_id", member.ParticipantID,
				"error", err,
			)
			continue
		}
		delivered++
	}
	return delivered
}
