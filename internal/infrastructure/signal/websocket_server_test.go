package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
	"meetsignal/pkg/config"
	apperrors "meetsignal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type fakeHub struct {
	mu          sync.Mutex
	connectErr  error
	connections []domain.Connection
	sinks       map[domain.ConnectionID]ports.FrameSink
	messages    []string
	notified    []apperrors.ErrorCode
	disconnects map[domain.ConnectionID]int
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		sinks:       make(map[domain.ConnectionID]ports.FrameSink),
		disconnects: make(map[domain.ConnectionID]int),
	}
}

func (h *fakeHub) Connect(_ context.Context, conn domain.Connection, sink ports.FrameSink) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connectErr != nil {
		return h.connectErr
	}
	h.connections = append(h.connections, conn)
	h.sinks[conn.ID] = sink
	return nil
}

func (h *fakeHub) Message(_ context.Context, connID domain.ConnectionID, raw []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, string(raw))
	// echo so the client can observe the round trip
	_ = h.sinks[connID].Send(raw)
	return nil
}

func (h *fakeHub) Disconnect(_ context.Context, connID domain.ConnectionID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects[connID]++
	return nil
}

func (h *fakeHub) Notify(_ context.Context, connID domain.ConnectionID, appErr *apperrors.AppError) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notified = append(h.notified, appErr.Code)
	return nil
}

func (h *fakeHub) snapshot() (conns []domain.Connection, msgs []string, notified []apperrors.ErrorCode, disconnects int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range h.disconnects {
		disconnects += n
	}
	return append(conns, h.connections...), append(msgs, h.messages...), append(notified, h.notified...), disconnects
}

func testServerConfig() ServerConfig {
	return ServerConfig{
		PingInterval:   time.Second,
		PongTimeout:    3 * time.Second,
		WriteTimeout:   time.Second,
		SendBuffer:     8,
		MaxMessageSize: 4096,
		AllowedOrigins: []string{"*"},
	}
}

func startGateway(t *testing.T, hub Hub, cfg ServerConfig, newLimiter func() *rate.Limiter) (*WebSocketServer, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := NewWebSocketServer(hub, cfg, newLimiter, zap.NewNop().Sugar())
	router := gin.New()
	router.GET("/ws", s.Handle)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketServer_RoundTrip(t *testing.T) {
	hub := newFakeHub()
	_, url := startGateway(t, hub, testServerConfig(), nil)

	conn := dial(t, url+"?token=opaque-123", nil)
	frame := `{"type":"ping","payload":{}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, frame, string(data))

	conns, msgs, _, _ := hub.snapshot()
	require.Len(t, conns, 1)
	assert.Equal(t, "opaque-123", conns[0].Token)
	assert.NotEmpty(t, conns[0].ID)
	assert.Equal(t, []string{frame}, msgs)
}

func TestWebSocketServer_DisconnectOnClientClose(t *testing.T) {
	hub := newFakeHub()
	s, url := startGateway(t, hub, testServerConfig(), nil)

	conn := dial(t, url, nil)
	assert.Eventually(t, func() bool { return s.ActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	assert.Eventually(t, func() bool {
		_, _, _, disconnects := hub.snapshot()
		return disconnects == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return s.ActiveConnections() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketServer_ConnectionIDsAreUnique(t *testing.T) {
	hub := newFakeHub()
	_, url := startGateway(t, hub, testServerConfig(), nil)

	dial(t, url, nil)
	dial(t, url, nil)

	assert.Eventually(t, func() bool {
		conns, _, _, _ := hub.snapshot()
		return len(conns) == 2
	}, time.Second, 5*time.Millisecond)
	conns, _, _, _ := hub.snapshot()
	assert.NotEqual(t, conns[0].ID, conns[1].ID)
}

func TestWebSocketServer_RateLimitedMessagesAreNotDispatched(t *testing.T) {
	hub := newFakeHub()
	limiter := func() *rate.Limiter { return rate.NewLimiter(rate.Limit(0), 1) }
	_, url := startGateway(t, hub, testServerConfig(), limiter)

	conn := dial(t, url, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	}

	assert.Eventually(t, func() bool {
		_, _, notified, _ := hub.snapshot()
		return len(notified) == 2
	}, 2*time.Second, 5*time.Millisecond)

	_, msgs, notified, _ := hub.snapshot()
	assert.Len(t, msgs, 1)
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeRateLimit, apperrors.ErrCodeRateLimit}, notified)
}

func TestWebSocketServer_ConnectionCap(t *testing.T) {
	hub := newFakeHub()
	cfg := testServerConfig()
	cfg.MaxConnections = 1
	s, url := startGateway(t, hub, cfg, nil)

	dial(t, url, nil)
	assert.Eventually(t, func() bool { return s.ActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketServer_OriginAllowList(t *testing.T) {
	hub := newFakeHub()
	cfg := testServerConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com", "meet.example.com"}
	_, url := startGateway(t, hub, cfg, nil)

	dial(t, url, http.Header{"Origin": {"https://app.example.com"}})
	dial(t, url, http.Header{"Origin": {"https://meet.example.com"}})

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketServer_ReadLimitClosesConnection(t *testing.T) {
	hub := newFakeHub()
	cfg := testServerConfig()
	cfg.MaxMessageSize = 32
	_, url := startGateway(t, hub, cfg, nil)

	conn := dial(t, url, nil)
	big := `{"type":"ping","payload":{"pad":"` + strings.Repeat("x", 256) + `"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		_, msgs, _, disconnects := hub.snapshot()
		return disconnects == 1 && len(msgs) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketServer_MissingPongClosesConnection(t *testing.T) {
	hub := newFakeHub()
	cfg := testServerConfig()
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PongTimeout = 80 * time.Millisecond
	_, url := startGateway(t, hub, cfg, nil)

	conn := dial(t, url, nil)
	conn.SetPingHandler(func(string) error { return nil })
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	assert.Eventually(t, func() bool {
		_, _, _, disconnects := hub.snapshot()
		return disconnects == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketServer_PongKeepsConnectionAlive(t *testing.T) {
	hub := newFakeHub()
	cfg := testServerConfig()
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PongTimeout = 80 * time.Millisecond
	s, url := startGateway(t, hub, cfg, nil)

	conn := dial(t, url, nil)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(300 * time.Millisecond)
	_, _, _, disconnects := hub.snapshot()
	assert.Zero(t, disconnects)
	assert.Equal(t, 1, s.ActiveConnections())
}

func TestWebSocketServer_ConnectFailureClosesSocket(t *testing.T) {
	hub := newFakeHub()
	hub.connectErr = errors.New("dispatcher stopped")
	_, url := startGateway(t, hub, testServerConfig(), nil)

	conn := dial(t, url, nil)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

func TestWebSocketServer_Shutdown(t *testing.T) {
	hub := newFakeHub()
	s, url := startGateway(t, hub, testServerConfig(), nil)

	conn := dial(t, url, nil)
	assert.Eventually(t, func() bool { return s.ActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	_, _, _, disconnects := hub.snapshot()
	assert.Equal(t, 1, disconnects)
}

func TestConnection_SendBackpressure(t *testing.T) {
	c := newConnection("c-1", nil, 1, nil, testServerConfig(), zap.NewNop().Sugar())

	require.NoError(t, c.Send([]byte("one")))
	assert.ErrorIs(t, c.Send([]byte("two")), ErrBackpressure)

	c.Close(websocket.CloseNormalClosure, "")
	c.Close(websocket.CloseGoingAway, "")
	assert.ErrorIs(t, c.Send([]byte("three")), ErrConnectionClosed)
	assert.Equal(t, websocket.CloseNormalClosure, c.closeCode)
}

func TestServerConfigFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.WebSocket.MaxConcurrent = 500

	sc := ServerConfigFromConfig(cfg)
	assert.Equal(t, 25*time.Second, sc.PingInterval)
	assert.Equal(t, 60*time.Second, sc.PongTimeout)
	assert.Equal(t, 64, sc.SendBuffer)
	assert.Equal(t, int64(64*1024), sc.MaxMessageSize)
	assert.Equal(t, []string{"*"}, sc.AllowedOrigins)
	assert.Zero(t, sc.MaxConnections, "cap only applies with rate limiting enabled")

	cfg.RateLimiting.Enabled = true
	assert.Equal(t, 500, ServerConfigFromConfig(cfg).MaxConnections)
}
