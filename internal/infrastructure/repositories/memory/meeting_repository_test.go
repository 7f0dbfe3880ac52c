package memory

import (
	"testing"
	"time"

	"meetsignal/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeetingRepository_GetOrCreateIsSingleton(t *testing.T) {
	repo := NewMeetingRepository()
	now := time.Now()

	m1, created := repo.GetOrCreate("meet-xyz", now)
	require.True(t, created)
	m2, created := repo.GetOrCreate("meet-xyz", now.Add(time.Second))
	assert.False(t, created)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, repo.Count())
	assert.Equal(t, now, m2.CreatedAt)
}

func TestMeetingRepository_AddRemoveMember(t *testing.T) {
	repo := NewMeetingRepository()
	repo.GetOrCreate("meet-abc123", time.Now())

	added, err := repo.AddMember("meet-abc123", domain.MemberInfo{ParticipantID: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddMember("meet-abc123", domain.MemberInfo{ParticipantID: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.False(t, added, "duplicate join must not duplicate the entry")

	_, err = repo.AddMember("meet-abc123", domain.MemberInfo{ParticipantID: "bob", DisplayName: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, []domain.MemberInfo{
		{ParticipantID: "alice", DisplayName: "Alice"},
		{ParticipantID: "bob", DisplayName: "Bob"},
	}, repo.ListMembers("meet-abc123"))

	deleted, err := repo.RemoveMember("meet-abc123", "alice")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.RemoveMember("meet-abc123", "bob")
	require.NoError(t, err)
	assert.True(t, deleted, "last leave deletes the meeting")

	_, ok := repo.Get("meet-abc123")
	assert.False(t, ok)
	assert.Empty(t, repo.ListMembers("meet-abc123"))
	assert.NotNil(t, repo.ListMembers("meet-abc123"))
}

func TestMeetingRepository_UnknownMeeting(t *testing.T) {
	repo := NewMeetingRepository()

	_, err := repo.AddMember("missing", domain.MemberInfo{ParticipantID: "p"})
	assert.ErrorIs(t, err, domain.ErrMeetingNotFound)

	_, err = repo.RemoveMember("missing", "p")
	assert.ErrorIs(t, err, domain.ErrMeetingNotFound)
}

func TestMeetingRepository_SweepEmpty(t *testing.T) {
	repo := NewMeetingRepository()
	now := time.Now()
	repo.GetOrCreate("meet-b", now)
	repo.GetOrCreate("meet-a", now)
	repo.GetOrCreate("meet-busy", now)
	_, _ = repo.AddMember("meet-busy", domain.MemberInfo{ParticipantID: "carol"})

	removed := repo.SweepEmpty()
	assert.Equal(t, []domain.MeetingID{"meet-a", "meet-b"}, removed)
	assert.Equal(t, 1, repo.Count())
	assert.Empty(t, repo.SweepEmpty())
}

func TestMeetingRepository_List(t *testing.T) {
	repo := NewMeetingRepository()
	base := time.Now()
	repo.GetOrCreate("second", base.Add(time.Minute))
	repo.GetOrCreate("first", base)
	_, _ = repo.AddMember("first", domain.MemberInfo{ParticipantID: "p1"})

	list := repo.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.MeetingID("first"), list[0].ID)
	assert.Equal(t, 1, list[0].Members)
	assert.Equal(t, domain.MeetingID("second"), list[1].ID)
}
