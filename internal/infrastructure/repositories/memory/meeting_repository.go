package memory

import (
	"sort"
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
)

// MeetingRepository is the in-process session directory. It holds no locks: every call is
// made from the dispatch loop.
type MeetingRepository struct {
	meetings map[domain.MeetingID]*domain.Meeting
}

func NewMeetingRepository() *MeetingRepository {
	return &MeetingRepository{
		meetings: make(map[domain.MeetingID]*domain.Meeting),
	}
}

var _ ports.SessionDirectory = (*MeetingRepository)(nil)

func (r *MeetingRepository) GetOrCreate(id domain.MeetingID, now time.Time) (*domain.Meeting, bool) {
	if m, ok := r.meetings[id]; ok {
		return m, false
	}
	m := domain.NewMeeting(id, now)
	r.meetings[id] = m
	return m, true
}

func (r *MeetingRepository) Get(id domain.MeetingID) (*domain.Meeting, bool) {
	m, ok := r.meetings[id]
	return m, ok
}

func (r *MeetingRepository) AddMember(id domain.MeetingID, member domain.MemberInfo) (bool, error) {
	m, ok := r.meetings[id]
	if !ok {
		return false, domain.ErrMeetingNotFound
	}
	added := m.AddMember(member)
	if added {
		m.IsActive = true
	}
	return added, nil
}

func (r *MeetingRepository) RemoveMember(id domain.MeetingID, participantID domain.ParticipantID) (bool, error) {
	m, ok := r.meetings[id]
	if !ok {
		return false, domain.ErrMeetingNotFound
	}
	m.RemoveMember(participantID)
	if m.IsEmpty() {
		delete(r.meetings, id)
		return true, nil
	}
	return false, nil
}

func (r *MeetingRepository) ListMembers(id domain.MeetingID) []domain.MemberInfo {
	m, ok := r.meetings[id]
	if !ok {
		return []domain.MemberInfo{}
	}
	return m.Members()
}

func (r *MeetingRepository) SweepEmpty() []domain.MeetingID {
	var removed []domain.MeetingID
	for id, m := range r.meetings {
		if m.IsEmpty() {
			delete(r.meetings, id)
			removed = append(removed, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed
}

func (r *MeetingRepository) Count() int {
	return len(r.meetings)
}

// List returns summaries ordered by creation time.
func (r *MeetingRepository) List() []domain.MeetingSummary {
	out := make([]domain.MeetingSummary, 0, len(r.meetings))
	for _, m := range r.meetings {
		out = append(out, m.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
