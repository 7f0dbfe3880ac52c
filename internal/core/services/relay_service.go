package services

import (
	"context"
	"strings"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
	apperrors "meetsignal/pkg/errors"
	"meetsignal/pkg/validation"

	"go.uber.org/zap"
)

// RelayService forwards negotiation envelopes between participants of the same meeting.
// Delivery is at most once; nothing is queued for absent targets.
type RelayService struct {
	participants ports.ParticipantRegistry
	metrics      ports.SignalingMetrics
	notify       *notifier
	logger       *zap.SugaredLogger
}

func NewRelayService(
	participants ports.ParticipantRegistry,
	meetings ports.SessionDirectory,
	metrics ports.SignalingMetrics,
	logger *zap.SugaredLogger,
) *RelayService {
	return &RelayService{
		participants: participants,
		metrics:      metrics,
		notify:       &notifier{participants: participants, meetings: meetings, logger: logger},
		logger:       logger,
	}
}

// Route delivers env to its target. An unreachable target is reported to the sender with a
// delivery-failed frame and is not an error.
func (s *RelayService) Route(ctx context.Context, connID domain.ConnectionID, env domain.SignalEnvelope) error {
	sender, ok := s.participants.Get(connID)
	if !ok {
		return apperrors.NewInternalError("connection is not registered")
	}
	if !sender.InMeeting() {
		return apperrors.NewNotInMeetingError()
	}

	env.TargetID = domain.ParticipantID(strings.TrimSpace(string(env.TargetID)))
	if err := validation.ValidateNonEmptyString(string(env.TargetID), "targetId"); err != nil {
		return apperrors.NewValidationError(err.Error()).WithContext("field", "targetId")
	}
	env.SenderID = sender.ID

	target, ok := s.participants.ByParticipant(env.TargetID)
	if !ok || target.ID == sender.ID || target.MeetingID != sender.MeetingID {
		s.deliveryFailed(sender, env, domain.ErrTargetUnreachable)
		return nil
	}

	sink, ok := s.participants.Sink(target.ConnectionID)
	if !ok {
		s.deliveryFailed(sender, env, domain.ErrTargetUnreachable)
		return nil
	}

	eventType, payload := env.OutboundFrame(sender.DisplayName)
	frame, err := domain.EncodeFrame(eventType, payload)
	if err != nil {
		return apperrors.NewMalformedPayloadError(err)
	}
	if err := sink.Send(frame); err != nil {
		s.deliveryFailed(sender, env, err)
		return nil
	}

	s.metrics.SignalRelayed(env.Kind)
	s.logger.Debugw("relayed signal",
		"kind", env.Kind,
		"sender_id", env.SenderID,
		"target_id", env.TargetID,
		"meeting_id", sender.MeetingID,
		"bytes", len(env.Payload),
	)
	return nil
}

func (s *RelayService) deliveryFailed(sender *domain.Participant, env domain.SignalEnvelope, cause error) {
	s.metrics.DeliveryFailed(env.Kind)
	failure := apperrors.NewTargetUnreachableError(cause).
		WithContext("kind", env.Kind).
		WithContext("target_id", env.TargetID)
	s.logger.Debugw("signal not delivered",
		"sender_id", env.SenderID,
		"error", failure,
		"context", failure.Context,
	)
	err := s.notify.sendTo(sender.ConnectionID, domain.EventDeliveryFailed, domain.DeliveryFailedPayload{
		TargetID: env.TargetID,
		Kind:     env.Kind,
		Code:     string(failure.Code),
	})
	if err != nil {
		s.logger.Debugw("failed to notify sender of delivery failure", "sender_id", sender.ID, "error", err)
	}
}
