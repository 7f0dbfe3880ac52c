package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeeting_MembershipIsIdempotent(t *testing.T) {
	m := NewMeeting("meet-abc123", time.Now())

	assert.True(t, m.AddMember(MemberInfo{ParticipantID: "alice", DisplayName: "Alice"}))
	assert.False(t, m.AddMember(MemberInfo{ParticipantID: "alice", DisplayName: "Alice"}))
	assert.True(t, m.AddMember(MemberInfo{ParticipantID: "bob", DisplayName: "Bob"}))
	assert.Equal(t, 2, m.Len())

	assert.True(t, m.RemoveMember("alice"))
	assert.False(t, m.RemoveMember("alice"))
	assert.Equal(t, []MemberInfo{{ParticipantID: "bob", DisplayName: "Bob"}}, m.Members())
	assert.True(t, m.IsActive)

	assert.True(t, m.RemoveMember("bob"))
	assert.True(t, m.IsEmpty())
	assert.False(t, m.IsActive)
}

func TestMeeting_KeepsJoinOrderAfterRemoval(t *testing.T) {
	m := NewMeeting("meet-1", time.Now())
	for _, id := range []ParticipantID{"a", "b", "c", "d"} {
		m.AddMember(MemberInfo{ParticipantID: id})
	}
	m.RemoveMember("b")
	m.AddMember(MemberInfo{ParticipantID: "e"})

	var ids []ParticipantID
	for _, member := range m.Members() {
		ids = append(ids, member.ParticipantID)
	}
	assert.Equal(t, []ParticipantID{"a", "c", "d", "e"}, ids)
	assert.True(t, m.HasMember("d"))
	assert.True(t, m.RemoveMember("d"))
	assert.Len(t, m.MembersExcept("a"), 2)
}

func TestEncodeFrame_PreservesRawPayload(t *testing.T) {
	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	frame, err := EncodeFrame(EventICECandidate, ICECandidateRelayPayload{SenderID: "bob", Candidate: candidate})
	require.NoError(t, err)

	assert.Equal(t,
		`{"type":"ice-candidate","payload":{"senderId":"bob","candidate":`+string(candidate)+`}}`,
		string(frame))
}

func TestEncodeFrame_NoHTMLEscaping(t *testing.T) {
	frame, err := EncodeFrame(EventUserJoined, UserJoinedPayload{MeetingID: "m", ParticipantID: "p", DisplayName: "<Tom & Jerry>"})
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"displayName":"<Tom & Jerry>"`)
}

func TestEncodeFrame_EmptyPayloadOmitted(t *testing.T) {
	frame, err := EncodeFrame(EventPong, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"pong"}`, string(frame))
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"type":"join-meeting","payload":{"meetingId":"meet-001","displayName":"alice"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventJoinMeeting, f.Type)

	var p JoinMeetingPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	assert.Equal(t, MeetingID("meet-001"), p.MeetingID)

	_, err = DecodeFrame([]byte(`{"payload":{}}`))
	assert.Error(t, err)
	_, err = DecodeFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestSignalEnvelope_OutboundFrame(t *testing.T) {
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	cases := []struct {
		kind SignalKind
		want EventType
	}{
		{SignalOffer, EventCallMade},
		{SignalAnswer, EventAnswerMade},
		{SignalICECandidate, EventICECandidate},
		{SignalScreenShare, EventScreenSharingSignal},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			env := SignalEnvelope{Kind: tc.kind, SenderID: "alice", TargetID: "bob", Payload: payload}
			eventType, body := env.OutboundFrame("Alice")
			assert.Equal(t, tc.want, eventType)

			frame, err := EncodeFrame(eventType, body)
			require.NoError(t, err)
			assert.Contains(t, string(frame), `"senderId":"alice"`)
			assert.Contains(t, string(frame), string(payload))
		})
	}
}
