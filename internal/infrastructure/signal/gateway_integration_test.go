package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/services"
	"meetsignal/internal/infrastructure/events"
	"meetsignal/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) *services.SignalingHub {
	t.Helper()
	d := services.NewDispatcher(64, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)

	return services.NewSignalingHub(d,
		memory.NewParticipantRepository(),
		memory.NewMeetingRepository(),
		events.NopPublisher{},
		services.NewMetricsService(),
		services.HubConfig{Presence: services.PresenceConfig{MaxDisplayName: 64, MaxMeetingID: 128}},
		zap.NewNop(),
	)
}

func send(t *testing.T, conn *websocket.Conn, eventType domain.EventType, payload string) {
	t.Helper()
	frame := `{"type":"` + string(eventType) + `","payload":` + payload + `}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// expect reads frames until one of the wanted type arrives.
func expect(t *testing.T, conn *websocket.Conn, eventType domain.EventType) json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", eventType)
		frame, err := domain.DecodeFrame(data)
		require.NoError(t, err)
		if frame.Type == eventType {
			return frame.Payload
		}
	}
}

func TestGateway_TwoPartyCallSetup(t *testing.T) {
	hub := startHub(t)
	_, url := startGateway(t, hub, testServerConfig(), nil)

	alice := dial(t, url, nil)
	bob := dial(t, url, nil)

	send(t, alice, domain.EventJoinMeeting, `{"meetingId":"meet-1","displayName":"Alice","participantId":"alice"}`)
	joined := expect(t, alice, domain.EventMeetingJoined)
	assert.Contains(t, string(joined), `"members":[]`)

	send(t, bob, domain.EventJoinMeeting, `{"meetingId":"meet-1","displayName":"Bob","participantId":"bob"}`)
	joined = expect(t, bob, domain.EventMeetingJoined)
	assert.Contains(t, string(joined), `"participantId":"alice"`)

	var userJoined domain.UserJoinedPayload
	require.NoError(t, json.Unmarshal(expect(t, alice, domain.EventUserJoined), &userJoined))
	assert.Equal(t, domain.ParticipantID("bob"), userJoined.ParticipantID)

	send(t, bob, domain.EventCallUser, `{"targetId":"alice","sdpOffer":{"type":"offer","sdp":"v=0"}}`)
	callMade := expect(t, alice, domain.EventCallMade)
	assert.JSONEq(t, `{"senderId":"bob","displayName":"Bob","sdpOffer":{"type":"offer","sdp":"v=0"}}`, string(callMade))

	send(t, alice, domain.EventMakeAnswer, `{"targetId":"bob","sdpAnswer":{"type":"answer","sdp":"v=0"}}`)
	answer := expect(t, bob, domain.EventAnswerMade)
	assert.Contains(t, string(answer), `"senderId":"alice"`)

	require.NoError(t, bob.Close())
	var left domain.UserLeftPayload
	require.NoError(t, json.Unmarshal(expect(t, alice, domain.EventUserLeft), &left))
	assert.Equal(t, domain.ParticipantID("bob"), left.ParticipantID)
}

func TestGateway_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	hub := startHub(t)
	_, url := startGateway(t, hub, testServerConfig(), nil)

	conn := dial(t, url, nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var meetingErr domain.MeetingErrorPayload
	require.NoError(t, json.Unmarshal(expect(t, conn, domain.EventMeetingError), &meetingErr))
	assert.Equal(t, "MALFORMED_PAYLOAD", meetingErr.Code)

	send(t, conn, domain.EventPing, `{}`)
	expect(t, conn, domain.EventPong)
}
