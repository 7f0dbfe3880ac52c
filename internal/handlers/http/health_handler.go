package http

import (
	"net/http"
	"time"

	"meetsignal/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	hub       StatsProvider
	checker   *monitoring.HealthChecker
	startedAt time.Time
}

func NewHealthHandler(hub StatsProvider, checker *monitoring.HealthChecker) *HealthHandler {
	return &HealthHandler{
		hub:       hub,
		checker:   checker,
		startedAt: time.Now(),
	}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Health reports liveness plus counts taken on the dispatch loop. It stays 200 as long as the
// process can answer; readiness is reported separately.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	}

	stats, err := h.hub.Stats(c.Request.Context())
	if err != nil {
		resp["status"] = "degraded"
		resp["error"] = err.Error()
		c.JSON(http.StatusOK, resp)
		return
	}

	resp["connections"] = stats.Connections
	resp["participants"] = stats.Participants
	resp["meetings"] = len(stats.Meetings)
	c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
