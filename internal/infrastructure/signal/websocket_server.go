package signal

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
	"meetsignal/internal/infrastructure/middleware"
	"meetsignal/pkg/config"
	apperrors "meetsignal/pkg/errors"
	"meetsignal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Hub is the signaling core as seen by the gateway.
type Hub interface {
	ports.SignalingHandler
	Notify(ctx context.Context, connID domain.ConnectionID, appErr *apperrors.AppError) error
}

type ServerConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
	MaxConnections int
}

// ServerConfigFromConfig maps the signal, auth and rate limiting sections onto the gateway.
func ServerConfigFromConfig(cfg *config.Config) ServerConfig {
	sc := ServerConfig{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBuffer:     cfg.Signal.SendBuffer,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		sc.MaxConnections = cfg.RateLimiting.WebSocket.MaxConcurrent
	}
	return sc
}

type WebSocketServer struct {
	hub        Hub
	cfg        ServerConfig
	upgrader   websocket.Upgrader
	slots      *middleware.ConnectionSlots
	newLimiter func() *rate.Limiter
	logger     *zap.SugaredLogger

	mu    sync.Mutex
	conns map[domain.ConnectionID]*wsConnection
}

// NewWebSocketServer builds the gateway. newLimiter may return nil for unlimited connections.
func NewWebSocketServer(hub Hub, cfg ServerConfig, newLimiter func() *rate.Limiter, logger *zap.SugaredLogger) *WebSocketServer {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if newLimiter == nil {
		newLimiter = func() *rate.Limiter { return nil }
	}

	s := &WebSocketServer{
		hub:        hub,
		cfg:        cfg,
		slots:      middleware.NewConnectionSlots(cfg.MaxConnections),
		newLimiter: newLimiter,
		logger:     logger,
		conns:      make(map[domain.ConnectionID]*wsConnection),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	if u, err := url.Parse(origin); err == nil {
		for _, allowed := range s.cfg.AllowedOrigins {
			if strings.EqualFold(allowed, u.Host) {
				return true
			}
		}
	}
	return false
}

// Handle is the gin handler for the websocket endpoint. IdentityMiddleware runs first when
// identity binding is configured.
func (s *WebSocketServer) Handle(c *gin.Context) {
	identity, token := middleware.IdentityFromContext(c)
	if token == "" {
		token = middleware.TokenFromRequest(c.Request)
	}
	id, outcome := s.serve(c.Writer, c.Request, identity, token)
	c.Set(middleware.ContextKeyUpgrade, outcome)
	if id != "" {
		c.Set(middleware.ContextKeyConnectionID, string(id))
	}
}

// ActiveConnections returns the number of open websockets.
func (s *WebSocketServer) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// serve runs one websocket session to completion and reports how the upgrade went.
func (s *WebSocketServer) serve(w http.ResponseWriter, r *http.Request, identity domain.Identity, token string) (domain.ConnectionID, string) {
	if !s.slots.TryAcquire() {
		s.logger.Warnw("rejecting websocket, connection limit reached",
			"remote_addr", r.RemoteAddr,
			"limit", s.cfg.MaxConnections,
		)
		appErr := apperrors.NewServiceUnavailableError("too many connections")
		http.Error(w, appErr.Message, appErr.HTTPStatus)
		return "", middleware.UpgradeAtCapacity
	}
	defer s.slots.Release()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debugw("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return "", middleware.UpgradeFailed
	}

	id := domain.ConnectionID(utils.GenerateConnectionID())
	conn := newConnection(id, ws, s.cfg.SendBuffer, s.newLimiter(), s.cfg, s.logger)

	// The request context ends when this handler returns; cleanup must outlive it.
	ctx := context.WithoutCancel(r.Context())

	err = s.hub.Connect(ctx, domain.Connection{
		ID:            id,
		EstablishedAt: time.Now(),
		RemoteAddr:    r.RemoteAddr,
		Token:         token,
		Identity:      identity,
	}, conn)
	if err != nil {
		s.logger.Errorw("failed to register connection", "connection_id", id, "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server unavailable")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
		_ = ws.Close()
		return id, middleware.UpgradeHubUnavailable
	}

	s.track(conn)
	go conn.writePump()

	s.readPump(ctx, conn)

	conn.Close(websocket.CloseNormalClosure, "")
	if err := s.hub.Disconnect(ctx, id); err != nil {
		s.logger.Warnw("disconnect not processed", "connection_id", id, "error", err)
	}
	s.untrack(id)
	return id, middleware.UpgradeAccepted
}

func (s *WebSocketServer) readPump(ctx context.Context, conn *wsConnection) {
	ws := conn.conn
	if s.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageSize)
	}
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Infow("websocket closed unexpectedly", "connection_id", conn.id, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if msgType != websocket.TextMessage {
			continue
		}

		if !conn.allow() {
			if err := s.hub.Notify(ctx, conn.id, apperrors.NewRateLimitError()); err != nil {
				return
			}
			continue
		}

		if err := s.hub.Message(ctx, conn.id, data); err != nil {
			s.logger.Warnw("message not dispatched", "connection_id", conn.id, "error", err)
			return
		}
	}
}

func (s *WebSocketServer) track(conn *wsConnection) {
	s.mu.Lock()
	s.conns[conn.id] = conn
	s.mu.Unlock()
}

func (s *WebSocketServer) untrack(id domain.ConnectionID) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// Shutdown sends a going-away close to every open websocket and waits for their handlers to
// finish cleanup, or for ctx to end.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close(websocket.CloseGoingAway, "server shutting down")
	}
	s.mu.Unlock()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for s.ActiveConnections() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
