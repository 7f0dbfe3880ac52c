package memory

import (
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
)

type participantEntry struct {
	conn        domain.Connection
	participant *domain.Participant
	sink        ports.FrameSink
}

// ParticipantRepository maps live connections to participants. Like MeetingRepository it is
// owned by the dispatch loop.
type ParticipantRepository struct {
	byConn        map[domain.ConnectionID]*participantEntry
	byParticipant map[domain.ParticipantID]domain.ConnectionID
}

func NewParticipantRepository() *ParticipantRepository {
	return &ParticipantRepository{
		byConn:        make(map[domain.ConnectionID]*participantEntry),
		byParticipant: make(map[domain.ParticipantID]domain.ConnectionID),
	}
}

var _ ports.ParticipantRegistry = (*ParticipantRepository)(nil)

// Register creates a participant for conn with no meeting. The participant id starts out as the
// connection id.
func (r *ParticipantRepository) Register(conn domain.Connection, sink ports.FrameSink) (*domain.Participant, error) {
	if _, exists := r.byConn[conn.ID]; exists {
		return nil, domain.ErrConnectionExists
	}
	pid := domain.ParticipantID(conn.ID)
	if _, taken := r.byParticipant[pid]; taken {
		return nil, domain.ErrParticipantIDInUse
	}

	p := &domain.Participant{
		ID:           pid,
		ConnectionID: conn.ID,
		DisplayName:  conn.Identity.Username,
	}
	if conn.EstablishedAt.IsZero() {
		conn.EstablishedAt = time.Now()
	}
	r.byConn[conn.ID] = &participantEntry{conn: conn, participant: p, sink: sink}
	r.byParticipant[pid] = conn.ID
	return p, nil
}

func (r *ParticipantRepository) Get(connID domain.ConnectionID) (*domain.Participant, bool) {
	e, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	return e.participant, true
}

func (r *ParticipantRepository) Connection(connID domain.ConnectionID) (domain.Connection, bool) {
	e, ok := r.byConn[connID]
	if !ok {
		return domain.Connection{}, false
	}
	return e.conn, true
}

func (r *ParticipantRepository) Sink(connID domain.ConnectionID) (ports.FrameSink, bool) {
	e, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	return e.sink, true
}

func (r *ParticipantRepository) ByParticipant(id domain.ParticipantID) (*domain.Participant, bool) {
	connID, ok := r.byParticipant[id]
	if !ok {
		return nil, false
	}
	return r.Get(connID)
}

func (r *ParticipantRepository) Rebind(connID domain.ConnectionID, id domain.ParticipantID) error {
	e, ok := r.byConn[connID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if e.participant.ID == id {
		return nil
	}
	if _, taken := r.byParticipant[id]; taken {
		return domain.ErrParticipantIDInUse
	}
	delete(r.byParticipant, e.participant.ID)
	e.participant.ID = id
	r.byParticipant[id] = connID
	return nil
}

func (r *ParticipantRepository) Remove(connID domain.ConnectionID) (*domain.Participant, bool) {
	e, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(r.byConn, connID)
	if owner, ok := r.byParticipant[e.participant.ID]; ok && owner == connID {
		delete(r.byParticipant, e.participant.ID)
	}
	return e.participant, true
}

func (r *ParticipantRepository) Count() int {
	return len(r.byConn)
}

func (r *ParticipantRepository) CountInMeetings() int {
	n := 0
	for _, e := range r.byConn {
		if e.participant.InMeeting() {
			n++
		}
	}
	return n
}
