package signal

import (
	"errors"
	"sync"
	"time"

	"meetsignal/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrBackpressure     = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

// wsConnection is the frame sink for one websocket. Frames are queued on a buffered channel
// and written by writePump, which is the only goroutine writing to the socket.
type wsConnection struct {
	id      domain.ConnectionID
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
	closeCode int
	closeMsg  string

	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *zap.SugaredLogger
}

func newConnection(id domain.ConnectionID, conn *websocket.Conn, buffer int, limiter *rate.Limiter, cfg ServerConfig, logger *zap.SugaredLogger) *wsConnection {
	return &wsConnection{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, buffer),
		limiter:      limiter,
		done:         make(chan struct{}),
		closeCode:    websocket.CloseNormalClosure,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		logger:       logger,
	}
}

// Send queues a frame without blocking. Called from the dispatch loop.
func (c *wsConnection) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warnw("dropping frame, client is not reading",
			"connection_id", c.id,
			"buffered", len(c.send),
		)
		return ErrBackpressure
	}
}

// Close asks writePump to send a close frame and tear the socket down. Safe to call repeatedly.
func (c *wsConnection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeMsg = reason
		close(c.done)
	})
}

func (c *wsConnection) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debugw("websocket write failed", "connection_id", c.id, "error", err)
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debugw("websocket ping failed", "connection_id", c.id, "error", err)
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.done:
			c.flush()
			if c.closeCode != websocket.CloseAbnormalClosure {
				msg := websocket.FormatCloseMessage(c.closeCode, c.closeMsg)
				_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
			}
			return
		}
	}
}

// flush writes frames queued before the close so a final error reply is not lost.
func (c *wsConnection) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
