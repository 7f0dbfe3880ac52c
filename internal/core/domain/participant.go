package domain

import "time"

type ConnectionID string

type ParticipantID string

// Connection is the transport-level identity of one client channel.
type Connection struct {
	ID            ConnectionID
	EstablishedAt time.Time
	RemoteAddr    string
	// Token is whatever the client presented at connect time. It is only verified when
	// auth.mode is jwt; otherwise it is carried opaquely.
	Token    string
	Identity Identity
}

// Identity is the verified subject behind a connect-time token.
type Identity struct {
	UserID   string
	Username string
}

func (i Identity) IsZero() bool {
	return i.UserID == ""
}

// Participant is the human occupant bound to a live connection.
type Participant struct {
	ID           ParticipantID
	ConnectionID ConnectionID
	DisplayName  string
	MeetingID    MeetingID
	JoinedAt     time.Time
}

func (p *Participant) InMeeting() bool {
	return p.MeetingID != ""
}

func (p *Participant) Member() MemberInfo {
	return MemberInfo{ParticipantID: p.ID, DisplayName: p.DisplayName}
}
