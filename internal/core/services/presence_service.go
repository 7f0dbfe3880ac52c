package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
	apperrors "meetsignal/pkg/errors"
	"meetsignal/pkg/validation"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Reasons attached to participant.left and meeting.ended events.
const (
	ReasonLeave      = "leave"
	ReasonDisconnect = "disconnect"
	ReasonEmpty      = "empty"
	ReasonSweep      = "sweep"
)

type PresenceConfig struct {
	MaxDisplayName int
	MaxMeetingID   int
	ICEServers     []webrtc.ICEServer
}

// PresenceService turns join, leave and disconnect into membership changes and presence
// broadcasts. It must only be called from the dispatch loop.
type PresenceService struct {
	participants ports.ParticipantRegistry
	meetings     ports.SessionDirectory
	events       ports.EventPublisher
	metrics      ports.SignalingMetrics
	notify       *notifier
	cfg          PresenceConfig
	now          func() time.Time
	logger       *zap.SugaredLogger
}

func NewPresenceService(
	participants ports.ParticipantRegistry,
	meetings ports.SessionDirectory,
	events ports.EventPublisher,
	metrics ports.SignalingMetrics,
	cfg PresenceConfig,
	logger *zap.SugaredLogger,
) *PresenceService {
	return &PresenceService{
		participants: participants,
		meetings:     meetings,
		events:       events,
		metrics:      metrics,
		notify:       &notifier{participants: participants, meetings: meetings, logger: logger},
		cfg:          cfg,
		now:          time.Now,
		logger:       logger,
	}
}

// Register records a new connection with a participant that is not yet in any meeting.
func (s *PresenceService) Register(ctx context.Context, conn domain.Connection, sink ports.FrameSink) (*domain.Participant, error) {
	if conn.EstablishedAt.IsZero() {
		conn.EstablishedAt = s.now()
	}
	p, err := s.participants.Register(conn, sink)
	if err != nil {
		return nil, err
	}
	s.metrics.ConnectionOpened()
	return p, nil
}

// Join binds the connection's participant to req.MeetingID, acknowledges the joiner with the
// members already present and tells those members about the joiner.
func (s *PresenceService) Join(ctx context.Context, connID domain.ConnectionID, req domain.JoinMeetingPayload) error {
	p, ok := s.participants.Get(connID)
	if !ok {
		return apperrors.NewInternalError("connection is not registered")
	}

	meetingID := domain.MeetingID(strings.TrimSpace(string(req.MeetingID)))

	// Membership state is checked before the payload: a participant already in a meeting
	// gets ALREADY_IN_MEETING (or a fresh ack for the same meeting) whatever else it sent.
	if p.InMeeting() {
		if p.MeetingID == meetingID {
			return s.acknowledge(p)
		}
		return apperrors.NewAlreadyInMeetingError(domain.ErrAlreadyInMeeting).WithContext("meetingId", p.MeetingID)
	}

	if err := validation.ValidateMeetingID(string(meetingID), s.cfg.MaxMeetingID); err != nil {
		return apperrors.NewValidationError(err.Error()).WithContext("field", "meetingId")
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		// only a verified token may supply the name; earlier joins never do
		if conn, ok := s.participants.Connection(connID); ok {
			name = strings.TrimSpace(conn.Identity.Username)
		}
	}
	if err := validation.ValidateDisplayName(name, s.cfg.MaxDisplayName); err != nil {
		return apperrors.NewValidationError(err.Error()).WithContext("field", "displayName")
	}

	if err := s.bindParticipantID(connID, p, req.ParticipantID); err != nil {
		return err
	}

	now := s.now()
	meeting, created := s.meetings.GetOrCreate(meetingID, now)
	if created {
		s.metrics.MeetingCreated()
		s.publish(ctx, domain.LifecycleMeetingCreated, meetingID, p, "")
	}

	p.DisplayName = name
	p.MeetingID = meetingID
	p.JoinedAt = now
	if _, err := s.meetings.AddMember(meeting.ID, p.Member()); err != nil {
		p.MeetingID = ""
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to add member", http.StatusInternalServerError)
	}
	s.publish(ctx, domain.LifecycleParticipantJoined, meetingID, p, "")

	s.logger.Infow("participant joined meeting",
		"connection_id", connID,
		"participant_id", p.ID,
		"meeting_id", meetingID,
		"members", meeting.Len(),
	)

	if err := s.acknowledge(p); err != nil {
		s.logger.Warnw("failed to acknowledge join", "participant_id", p.ID, "error", err)
	}
	s.notify.broadcast(meetingID, p.ID, domain.EventUserJoined, domain.UserJoinedPayload{
		MeetingID:     meetingID,
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
	})
	return nil
}

func (s *PresenceService) acknowledge(p *domain.Participant) error {
	members := []domain.MemberInfo{}
	if m, ok := s.meetings.Get(p.MeetingID); ok {
		members = m.MembersExcept(p.ID)
	}
	return s.notify.sendTo(p.ConnectionID, domain.EventMeetingJoined, domain.MeetingJoinedPayload{
		MeetingID:     p.MeetingID,
		ParticipantID: p.ID,
		Members:       members,
		ICEServers:    s.cfg.ICEServers,
	})
}

// bindParticipantID applies the identity precedence: verified token subject, then a
// client-requested id, then whatever the participant already has.
func (s *PresenceService) bindParticipantID(connID domain.ConnectionID, p *domain.Participant, requested domain.ParticipantID) error {
	desired := p.ID
	if conn, ok := s.participants.Connection(connID); ok && !conn.Identity.IsZero() {
		desired = domain.ParticipantID(conn.Identity.UserID)
	} else if requested != "" {
		if err := validation.ValidateParticipantID(string(requested)); err != nil {
			return apperrors.NewValidationError(err.Error()).WithContext("field", "participantId")
		}
		desired = requested
	}

	if err := s.participants.Rebind(connID, desired); err != nil {
		if errors.Is(err, domain.ErrParticipantIDInUse) {
			return apperrors.NewValidationError("participantId is already in use").WithContext("participantId", desired)
		}
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to bind participant id", http.StatusInternalServerError)
	}
	return nil
}

// Leave removes the participant from its meeting. Leaving while not in a meeting is a no-op.
func (s *PresenceService) Leave(ctx context.Context, connID domain.ConnectionID, reason string) error {
	p, ok := s.participants.Get(connID)
	if !ok || !p.InMeeting() {
		return nil
	}

	meetingID := p.MeetingID
	p.MeetingID = ""
	p.JoinedAt = time.Time{}

	deleted, err := s.meetings.RemoveMember(meetingID, p.ID)
	if err != nil && !errors.Is(err, domain.ErrMeetingNotFound) {
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to remove member", http.StatusInternalServerError)
	}
	s.publish(ctx, domain.LifecycleParticipantLeft, meetingID, p, reason)

	s.logger.Infow("participant left meeting",
		"connection_id", connID,
		"participant_id", p.ID,
		"meeting_id", meetingID,
		"reason", reason,
	)

	if deleted {
		s.metrics.MeetingEnded(ReasonEmpty)
		s.publish(ctx, domain.LifecycleMeetingEnded, meetingID, nil, ReasonEmpty)
		s.logger.Infow("meeting ended", "meeting_id", meetingID, "reason", ReasonEmpty)
		return nil
	}

	s.notify.broadcast(meetingID, p.ID, domain.EventUserLeft, domain.UserLeftPayload{
		MeetingID:     meetingID,
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
	})
	return nil
}

// Unregister is the single cleanup path for a closed connection. It is safe to call more than
// once and reports whether anything was removed.
func (s *PresenceService) Unregister(ctx context.Context, connID domain.ConnectionID) bool {
	if _, ok := s.participants.Get(connID); !ok {
		return false
	}
	if err := s.Leave(ctx, connID, ReasonDisconnect); err != nil {
		s.logger.Errorw("leave during unregister failed", "connection_id", connID, "error", err)
	}
	s.participants.Remove(connID)
	s.metrics.ConnectionClosed()
	return true
}

func (s *PresenceService) publish(ctx context.Context, t domain.LifecycleEventType, meetingID domain.MeetingID, p *domain.Participant, reason string) {
	ev := domain.LifecycleEvent{
		Type:      t,
		MeetingID: meetingID,
		Reason:    reason,
		Timestamp: s.now(),
	}
	if p != nil {
		ev.ParticipantID = p.ID
		ev.ConnectionID = p.ConnectionID
	}
	s.events.Publish(ctx, ev)
}
