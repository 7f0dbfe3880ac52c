package ports

import (
	"time"

	"meetsignal/internal/core/domain"
)

// SessionDirectory maps meeting ids to room state. Implementations are owned by the dispatch
// loop and are not safe for concurrent use.
type SessionDirectory interface {
	// GetOrCreate returns the meeting for id, creating an empty one if absent.
	GetOrCreate(id domain.MeetingID, now time.Time) (meeting *domain.Meeting, created bool)
	Get(id domain.MeetingID) (*domain.Meeting, bool)
	AddMember(id domain.MeetingID, member domain.MemberInfo) (added bool, err error)
	// RemoveMember deletes the meeting when it becomes empty and reports that via deleted.
	RemoveMember(id domain.MeetingID, participantID domain.ParticipantID) (deleted bool, err error)
	ListMembers(id domain.MeetingID) []domain.MemberInfo
	// SweepEmpty removes every meeting with no members and returns their ids.
	SweepEmpty() []domain.MeetingID
	Count() int
	List() []domain.MeetingSummary
}

// FrameSink accepts encoded frames for one connection without blocking.
type FrameSink interface {
	Send(frame []byte) error
}

// ParticipantRegistry maps live connections to participants. Same ownership rules as
// SessionDirectory.
type ParticipantRegistry interface {
	Register(conn domain.Connection, sink FrameSink) (*domain.Participant, error)
	Get(connID domain.ConnectionID) (*domain.Participant, bool)
	Connection(connID domain.ConnectionID) (domain.Connection, bool)
	Sink(connID domain.ConnectionID) (FrameSink, bool)
	ByParticipant(id domain.ParticipantID) (*domain.Participant, bool)
	// Rebind changes the participant id of a connection. It fails with
	// domain.ErrParticipantIDInUse when another live connection holds id.
	Rebind(connID domain.ConnectionID, id domain.ParticipantID) error
	Remove(connID domain.ConnectionID) (*domain.Participant, bool)
	Count() int
	CountInMeetings() int
}
