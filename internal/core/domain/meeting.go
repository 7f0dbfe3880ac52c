package domain

import "time"

type MeetingID string

// MemberInfo is the public view of a meeting occupant.
type MemberInfo struct {
	ParticipantID ParticipantID `json:"participantId"`
	DisplayName   string        `json:"displayName"`
}

// Meeting is a named signaling scope. Members are kept in join order.
type Meeting struct {
	ID        MeetingID
	CreatedAt time.Time
	IsActive  bool

	members []MemberInfo
	index   map[ParticipantID]int
}

func NewMeeting(id MeetingID, now time.Time) *Meeting {
	return &Meeting{
		ID:        id,
		CreatedAt: now,
		IsActive:  true,
		index:     make(map[ParticipantID]int),
	}
}

// AddMember inserts m and reports whether it was added. Adding an existing id is a no-op.
func (m *Meeting) AddMember(member MemberInfo) bool {
	if _, ok := m.index[member.ParticipantID]; ok {
		return false
	}
	m.index[member.ParticipantID] = len(m.members)
	m.members = append(m.members, member)
	return true
}

// RemoveMember removes id and reports whether it was present.
func (m *Meeting) RemoveMember(id ParticipantID) bool {
	pos, ok := m.index[id]
	if !ok {
		return false
	}
	m.members = append(m.members[:pos], m.members[pos+1:]...)
	delete(m.index, id)
	for i := pos; i < len(m.members); i++ {
		m.index[m.members[i].ParticipantID] = i
	}
	if len(m.members) == 0 {
		m.IsActive = false
	}
	return true
}

func (m *Meeting) HasMember(id ParticipantID) bool {
	_, ok := m.index[id]
	return ok
}

// Members returns a copy of the member list in join order.
func (m *Meeting) Members() []MemberInfo {
	out := make([]MemberInfo, len(m.members))
	copy(out, m.members)
	return out
}

// MembersExcept returns the member list without id.
func (m *Meeting) MembersExcept(id ParticipantID) []MemberInfo {
	out := make([]MemberInfo, 0, len(m.members))
	for _, member := range m.members {
		if member.ParticipantID != id {
			out = append(out, member)
		}
	}
	return out
}

func (m *Meeting) Len() int {
	return len(m.members)
}

func (m *Meeting) IsEmpty() bool {
	return len(m.members) == 0
}

// MeetingSummary is a read-only snapshot used by health and stats endpoints.
type MeetingSummary struct {
	ID        MeetingID `json:"meetingId"`
	Members   int       `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *Meeting) Summary() MeetingSummary {
	return MeetingSummary{ID: m.ID, Members: len(m.members), CreatedAt: m.CreatedAt}
}
