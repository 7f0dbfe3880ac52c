package http

import (
	"context"
	"net/http"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/services"
	apperrors "meetsignal/pkg/errors"

	webrtc "github.com/pion/webrtc/v3"

	"github.com/gin-gonic/gin"
)

// StatsProvider takes a consistent snapshot of the signaling state.
type StatsProvider interface {
	Stats(ctx context.Context) (services.HubStats, error)
}

type MeetingHandler struct {
	hub        StatsProvider
	iceServers []webrtc.ICEServer
	poolSize   uint8
}

func NewMeetingHandler(hub StatsProvider, iceServers []webrtc.ICEServer, poolSize uint8) *MeetingHandler {
	return &MeetingHandler{
		hub:        hub,
		iceServers: iceServers,
		poolSize:   poolSize,
	}
}

func (h *MeetingHandler) SetupRoutes(router *gin.Engine, middleware ...gin.HandlerFunc) {
	api := router.Group("/api/v1", middleware...)
	{
		api.GET("/ice-servers", h.GetICEServers)
		api.GET("/stats", h.GetStats)
		api.GET("/meetings", h.ListMeetings)
		api.GET("/meetings/:id", h.GetMeeting)
	}
}

// GetICEServers returns the ICE configuration clients should build their peer connections with.
func (h *MeetingHandler) GetICEServers(c *gin.Context) {
	servers := h.iceServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	c.JSON(http.StatusOK, gin.H{
		"iceServers":           servers,
		"iceCandidatePoolSize": h.poolSize,
	})
}

func (h *MeetingHandler) GetStats(c *gin.Context) {
	stats, err := h.hub.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "signaling core unavailable", http.StatusServiceUnavailable))
		return
	}

	members := 0
	for _, m := range stats.Meetings {
		members += m.Members
	}
	c.JSON(http.StatusOK, gin.H{
		"connections":  stats.Connections,
		"participants": stats.Participants,
		"meetings":     len(stats.Meetings),
		"members":      members,
	})
}

func (h *MeetingHandler) ListMeetings(c *gin.Context) {
	stats, err := h.hub.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "signaling core unavailable", http.StatusServiceUnavailable))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meetings": stats.Meetings,
	})
}

func (h *MeetingHandler) GetMeeting(c *gin.Context) {
	id := domain.MeetingID(c.Param("id"))

	stats, err := h.hub.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "signaling core unavailable", http.StatusServiceUnavailable))
		return
	}
	for _, m := range stats.Meetings {
		if m.ID == id {
			c.JSON(http.StatusOK, m)
			return
		}
	}
	_ = c.Error(apperrors.WrapError(domain.ErrMeetingNotFound, apperrors.ErrCodeNotFound, "meeting not found", http.StatusNotFound).
		WithContext("meeting_id", id))
}
